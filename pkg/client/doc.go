/*
Package client is a thin HTTP client over the REST API, used by the CLI
when pointed at a running server instead of an embedded data directory.
*/
package client
