// Package avatar derives profile image URLs from email addresses.
package avatar

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
)

const gravatarBase = "https://www.gravatar.com/avatar/"

// Options are the Gravatar query parameters.
type Options struct {
	Size    string
	Rating  string
	Default string
}

// DefaultOptions renders a 200px, PG-rated image with the mystery-man fallback.
var DefaultOptions = Options{Size: "200", Rating: "pg", Default: "mm"}

// URL returns the Gravatar address for email. The result depends only on the
// trimmed, lower-cased email and opts.
func URL(email string, opts Options) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))

	q := url.Values{}
	if opts.Size != "" {
		q.Set("s", opts.Size)
	}
	if opts.Rating != "" {
		q.Set("r", opts.Rating)
	}
	if opts.Default != "" {
		q.Set("d", opts.Default)
	}

	u := gravatarBase + hex.EncodeToString(sum[:])
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}
