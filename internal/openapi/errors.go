package openapi

import "errors"

// ErrBadSpec is returned for any root-document parse or semantic failure —
// malformed JSON/YAML, unsupported openapi version, or a server URL that
// cannot be resolved. Callers surface it with detail and mark the
// integration error.
var ErrBadSpec = errors.New("openapi: bad spec")
