// Package configs provides the embedded configuration template for
// medfuse.
//
// The template is embedded at build time with go:embed so it ships in
// every distribution. It is surfaced by 'medfuse config example', which
// prints it or writes it to a file for editing.
package configs

import _ "embed"

// ExampleConfig is the annotated configuration template. Every key is
// optional; omitted keys keep their defaults.
//
//go:embed medfuse.example.yaml
var ExampleConfig string
