package simplemessages

import (
	_ "embed"
	"encoding/base64"
)

//go:embed placeholder.png
var placeholderPNG []byte

// DefaultPlaceholderURL is the marker used for feed entries without a
// resolvable image: a data URI of a neutral silhouette avatar.
var DefaultPlaceholderURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(placeholderPNG)

// PlaceholderImage returns a copy of the embedded placeholder PNG.
func PlaceholderImage() []byte {
	out := make([]byte, len(placeholderPNG))
	copy(out, placeholderPNG)
	return out
}
