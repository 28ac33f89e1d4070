package tasks

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/stash/internal/shared"
)

// CatalogTrackURL is the canonical public URL prefix for catalog tracks.
const CatalogTrackURL = "https://open.spotify.com/track/"

// ResolveReference returns the track reference and the catalog URL to convert.
//
// When catalogURL is given, the reference defaults to its last path segment (query and fragment
// ignored). Otherwise the canonical URL is built from ref. "spotify:track:" URIs are accepted as refs.
func ResolveReference(ref, catalogURL string) (string, string, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "spotify:track:")
	catalogURL = strings.TrimSpace(catalogURL)

	if catalogURL != "" {
		u, err := url.Parse(catalogURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", "", fmt.Errorf("%w: catalog url %q", shared.ErrInvalidArgument, catalogURL)
		}

		if ref == "" {
			segments := strings.Split(strings.Trim(u.Path, "/"), "/")
			ref = segments[len(segments)-1]
		}
	}

	if ref == "" {
		return "", "", fmt.Errorf("%w: track reference", shared.ErrMissingArgument)
	}
	if strings.ContainsAny(ref, "/\\?#") || ref == "." || ref == ".." {
		return "", "", fmt.Errorf("%w: track reference %q", shared.ErrInvalidArgument, ref)
	}

	if catalogURL == "" {
		catalogURL = CatalogTrackURL + ref
	}
	return ref, catalogURL, nil
}
