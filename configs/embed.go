// Package configs embeds the example configuration written by
// `repoindex config init`.
//
// The file documents every key Load understands. Values left commented out
// fall back to the defaults in internal/config.NewConfig.
package configs

import _ "embed"

// ExampleConfig is the annotated configuration template.
//
//go:embed config.example.yaml
var ExampleConfig string
