package httpcond

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ResourceClass is the closed set of cacheability classes a response can
// fall into. Classification is an authorization decision made by the caller.
type ResourceClass int

const (
	ClassNoCache ResourceClass = iota
	ClassOwnedByRequester
	ClassOwnedByOther
	ClassCollection
	ClassSearchResult
	ClassAdministrative
)

func (c ResourceClass) String() string {
	switch c {
	case ClassOwnedByRequester:
		return "owned-by-requester"
	case ClassOwnedByOther:
		return "owned-by-other"
	case ClassCollection:
		return "collection"
	case ClassSearchResult:
		return "search-result"
	case ClassAdministrative:
		return "administrative"
	default:
		return "no-cache"
	}
}

// DirectiveSet is the cache-control posture attached to one resource class.
type DirectiveSet struct {
	MaxAge         time.Duration
	Private        bool
	MustRevalidate bool
	NoStore        bool
	VaryOn         []string
}

// PolicyTable maps resource classes to directive sets. Classes without an
// entry resolve to the zero DirectiveSet, which renders as uncacheable.
type PolicyTable map[ResourceClass]DirectiveSet

// DefaultPolicies is the stock table: private short-lived caching for data
// the requester owns, slightly longer shared caching for public profiles,
// and nothing at all for administrative or authentication responses.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		ClassOwnedByRequester: {
			MaxAge:         time.Minute,
			Private:        true,
			MustRevalidate: true,
			VaryOn:         []string{"Authorization"},
		},
		ClassOwnedByOther: {
			MaxAge: 5 * time.Minute,
			VaryOn: []string{"Authorization"},
		},
		ClassCollection: {
			MaxAge:         30 * time.Second,
			Private:        true,
			MustRevalidate: true,
			VaryOn:         []string{"Authorization"},
		},
		ClassSearchResult: {
			MaxAge: 10 * time.Second,
			VaryOn: []string{"Authorization"},
		},
		ClassAdministrative: {Private: true, NoStore: true},
		ClassNoCache:        {},
	}
}

// Directives resolves the directive set for a class. Administrative
// responses force no-store even when the table configures a positive
// max-age: sensitive data must not linger in shared caches.
func (t PolicyTable) Directives(class ResourceClass) DirectiveSet {
	directives := t[class]
	if class == ClassAdministrative {
		directives.NoStore = true
	}
	return directives
}

// Apply writes the caching headers for a class onto a response, together
// with the validators the caller computed. Every response path goes through
// here, including 304 and 412 short-circuits.
func (t PolicyTable) Apply(
	headers http.Header,
	class ResourceClass,
	etag string,
	lastModified time.Time,
) {
	t.Directives(class).apply(headers)

	if etag != "" {
		headers.Set("Etag", etag)
	}
	if !lastModified.IsZero() {
		headers.Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
}

func (d DirectiveSet) apply(headers http.Header) {
	// A zero max-age collapses to the full uncacheable set, whatever the
	// rest of the directives say.
	if d.MaxAge <= 0 {
		headers.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		headers.Set("Pragma", "no-cache")
		headers.Set("Expires", "0")
		return
	}

	value := "public"
	if d.Private {
		value = "private"
	}
	value += ", max-age=" + strconv.FormatInt(int64(d.MaxAge.Seconds()), 10)
	if d.NoStore {
		value += ", no-store"
	}
	if d.MustRevalidate {
		value += ", must-revalidate"
	}

	headers.Set("Cache-Control", value)
	if len(d.VaryOn) > 0 {
		headers.Set("Vary", strings.Join(d.VaryOn, ", "))
	}
}
