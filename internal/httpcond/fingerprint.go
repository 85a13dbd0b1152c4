// Implements the validator generation and conditional request evaluation
// described in RFC 9110 sections 8.8 'Validator Fields' and 13 'Conditional
// Requests'.
//
//	See https://datatracker.ietf.org/doc/html/rfc9110#section-8.8
//	See https://datatracker.ietf.org/doc/html/rfc9110#section-13
package httpcond

import (
	"encoding/hex"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

var ErrNoVersion = errors.New("resource version carries no identity")

// ResourceVersion is the identity and last-modification instant of one
// resource, as reported by the store. It is the only input the fingerprint
// generator ever sees.
type ResourceVersion struct {
	ID           string
	LastModified time.Time
}

// tagHexLen truncates the blake3 digest for header compactness. The tag only
// needs to differ when the resource differs, it is not a capability token.
const tagHexLen = 32

// collectionSentinel seeds the tag of an empty collection. It contains a NUL
// byte so that no id:timestamp concatenation can collide with it.
const collectionSentinel = "\x00empty\x00"

// Fingerprinter computes entity tags from resource versions. It is stateless
// and safe for concurrent use; it is passed around explicitly so tests can
// substitute it.
type Fingerprinter struct{}

func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{}
}

// EntityTag returns the strong, quoted validator for a single resource.
// Identical versions always produce identical tags.
func (f *Fingerprinter) EntityTag(version ResourceVersion) (string, error) {
	if version.ID == "" {
		return "", ErrNoVersion
	}
	return f.hash(canonicalVersion(version)), nil
}

// CollectionTag returns the validator for a set of resources. The input is
// sorted by id first, so any enumeration order of the same versions yields
// the same tag. Ids are assumed unique within one collection.
func (f *Fingerprinter) CollectionTag(versions []ResourceVersion) (string, error) {
	if len(versions) == 0 {
		return f.hash(collectionSentinel), nil
	}

	sorted := slices.Clone(versions)
	slices.SortFunc(sorted, func(a, b ResourceVersion) int {
		return strings.Compare(a.ID, b.ID)
	})

	var payload strings.Builder
	for _, version := range sorted {
		if version.ID == "" {
			return "", ErrNoVersion
		}
		payload.WriteString(canonicalVersion(version))
		payload.WriteByte('\n')
	}
	return f.hash(payload.String()), nil
}

func canonicalVersion(version ResourceVersion) string {
	return version.ID + ":" + version.LastModified.UTC().Format(time.RFC3339Nano)
}

func (f *Fingerprinter) hash(payload string) string {
	sum := blake3.Sum256([]byte(payload))
	return `"` + hex.EncodeToString(sum[:])[:tagHexLen] + `"`
}
