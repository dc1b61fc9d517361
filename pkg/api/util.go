package api

import (
	"strconv"

	"github.com/cuemby/burrow/pkg/errdefs"
)

var errInvalidPITRTime = errdefs.InvalidArgf("pitr fork requires a positive 'at' timestamp in milliseconds")

// intParam parses an optional integer query parameter.
func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
