// Package httpapi serves the busyline control API on a unix socket or TCP
// listener, plus an embedded live view and the event stream.
package httpapi

import (
	"embed"
	"io/fs"
)

// The live view is a single self-contained page; no build step, no external
// asset pipeline.
//
//go:embed assets/index.html
var embeddedAssets embed.FS

var assetsFS fs.FS

func init() {
	sub, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		assetsFS = embeddedAssets
		return
	}
	assetsFS = sub
}
