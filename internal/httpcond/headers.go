package httpcond

import (
	"net/http"
	"slices"
	"strings"
	"time"
)

// TagList is the parsed value of an If-Match or If-None-Match header.
// Malformed entries canonicalize to values that match nothing rather than
// producing an error, so a garbled conditional GET proceeds normally and a
// garbled conditional write is refused.
type TagList struct {
	// Present records that the header was sent at all, even if nothing in it
	// could be parsed. An unparseable If-Match must still fail the
	// precondition instead of being treated as an unconditional write.
	Present  bool
	Wildcard bool
	Tags     []string
}

// Conditional is the parsed conditional-request state of one request.
type Conditional struct {
	IfNoneMatch     TagList
	IfMatch         TagList
	IfModifiedSince time.Time // zero when absent or unparseable
}

// ParseConditional extracts the conditional headers from a request header
// map. It never fails; see TagList for how malformed input degrades.
func ParseConditional(headers http.Header) Conditional {
	cond := Conditional{
		IfNoneMatch: ParseTagList(headers.Values("If-None-Match")),
		IfMatch:     ParseTagList(headers.Values("If-Match")),
	}

	if raw := headers.Get("If-Modified-Since"); raw != "" {
		if t, err := http.ParseTime(raw); err == nil {
			cond.IfModifiedSince = t
		}
	}
	return cond
}

// ParseTag canonicalizes a single entity tag: the weak indicator and the
// surrounding quotes are stripped, whitespace is trimmed. Weak tags compare
// like their strong form. Reports false for input with no usable value.
func ParseTag(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "W/")
	value = strings.Trim(value, `"`)
	value = strings.TrimSpace(value)
	return value, value != ""
}

// ParseTagList parses all values of a Match header into canonical tags. The
// literal '*' short-circuits per-item comparison entirely.
func ParseTagList(values []string) TagList {
	list := TagList{}

	for _, raw := range values {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		list.Present = true

		for item := range strings.SplitSeq(raw, ",") {
			item = strings.TrimSpace(item)
			if item == "*" {
				list.Wildcard = true
				continue
			}
			if value, ok := ParseTag(item); ok {
				list.Tags = append(list.Tags, value)
			}
		}
	}
	return list
}

// Matches reports whether any tag in the list equals the current tag under
// ordinal comparison, after both sides are canonicalized. The wildcard is
// deliberately not considered here, its meaning differs per header.
func (l TagList) Matches(currentTag string) bool {
	current, ok := ParseTag(currentTag)
	if !ok {
		return false
	}
	return slices.Contains(l.Tags, current)
}
