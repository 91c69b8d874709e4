// Package web embeds the static entry forms served at /login and /register.
package web

import "embed"

//go:embed *.html
var FS embed.FS
