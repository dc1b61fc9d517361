/*
Package api exposes the engine over HTTP as a thin REST façade.

Every route resolves its target store from the ?store= query parameter
(defaulting to "main"), decodes JSON arguments, and delegates to the
registry or store; no engine logic lives in the handlers. Failures are
rendered as {"error": <kind>, "message": ...} with the status code mapped
from the error taxonomy. The server also mounts /metrics (Prometheus)
and /healthz.
*/
package api
