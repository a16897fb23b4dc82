package spaserver

import (
	"mime"
	"path/filepath"
)

// contentTypeFor infers an asset's Content-Type from its extension. No
// content-sniffing library appears anywhere in the retrieval pack, and the
// standard library's extension table already covers the asset kinds ODIN's
// own js/wasm/css modules need, so mime.TypeByExtension is the correct
// idiomatic choice here rather than a gap to fill with a dependency.
func contentTypeFor(filename string) string {
	ext := filepath.Ext(filename)
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	switch ext {
	case ".wasm":
		return "application/wasm"
	default:
		return "application/octet-stream"
	}
}
