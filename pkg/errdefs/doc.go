/*
Package errdefs defines the error taxonomy shared by the engine and its
surfaces.

Every user-visible failure wraps exactly one of the sentinel errors
(ErrInvalidArg, ErrNotFound, ErrConflict, ErrForbidden, ErrIntegrity,
ErrUnavailable). Internal packages wrap with fmt.Errorf and %w so callers
can classify with errors.Is; the REST layer maps the sentinel to an HTTP
status via HTTPStatus and to a wire kind via Kind.

Validation errors surface before any mutation occurs. A WAL append failure
is ErrUnavailable: the record is not committed and indexes are untouched.
Integrity verification failures are reported in the verification result
(not valid, with the first divergent sequence) rather than as an error,
and are never silently repaired.
*/
package errdefs
