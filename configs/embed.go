// Package configs embeds the configuration template written by
// `semindex init`.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented .semindex.yaml created in the
// project root. Every uncommented value equals the built-in default.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
