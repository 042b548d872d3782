package web

import "embed"

// StaticFS embeds the single-page frontend served for every non-API path.
//
//go:embed static
var StaticFS embed.FS
