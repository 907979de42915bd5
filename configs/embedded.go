// Package configs provides the built-in defaults for feed-brief.
package configs

import _ "embed"

// Defaults is the base configuration every config file is merged over.
//
//go:embed defaults.yaml
var Defaults []byte
