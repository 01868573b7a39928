// Package favicon discovers, ranks and fetches the best available icon for a
// web domain.
//
// The pipeline is strictly sequential: discover candidates from page markup,
// the web manifest and well-known paths, rank them by declared quality
// signals, then try them one at a time in rank order. Failures of the target
// site are absorbed by the fallback tiers (remote lookup service, default
// image); only invalid input is surfaced to the caller.
package favicon

import (
	"github.com/vemetric/favicon-api/imgproc"
)

// Origin identifies the discovery tier a candidate or asset came from.
type Origin string

const (
	OriginMarkup    Origin = "markup-link"
	OriginManifest  Origin = "manifest"
	OriginWellKnown Origin = "well-known"
	OriginRemote    Origin = "remote-fallback"
	OriginDefault   Origin = "default"
)

// Candidate is a discovered, not-yet-fetched pointer to a possible icon
// asset plus its declared quality signals. Immutable once produced; the
// candidate list is never deduplicated, duplicates are scored and tried
// independently.
type Candidate struct {
	// URL is absolute, or a data: URI passed through unchanged.
	URL string
	// Size is the declared pixel width (first number of a WxH pair),
	// 0 when undeclared.
	Size int
	// Format is the declared format hint ("png", "svg", ...), "" unknown.
	Format string
	// Rel is the relation text from the source markup.
	Rel string
	// Origin is the discovery tier.
	Origin Origin
	// Score is assigned by Rank; a pure function of the fields above.
	Score int
}

// Asset is a fetched icon body that passed the size and image-sniff gates.
type Asset struct {
	Bytes  []byte
	Format imgproc.Format
	Origin Origin
	URL    string
}

// Resolved is the final pipeline output. Format, Width and Height reflect
// the actual result of normalization, not the request.
type Resolved struct {
	Bytes     []byte
	Format    imgproc.Format
	Width     int
	Height    int
	URL       string // normalized target URL
	SourceURL string // where the bytes came from ("" for the bundled default)
	Source    Origin
}
