package conductor

import _ "embed"

// Version is the release of this module. Callers usually strings.TrimSpace it.
//
//go:embed VERSION
var Version string
