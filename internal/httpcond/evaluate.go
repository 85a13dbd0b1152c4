package httpcond

import (
	"net/http"
	"time"
)

// ConflictCodeVersionMismatch is the machine-readable code carried by every
// 412 body. Clients key their retry logic on it.
const ConflictCodeVersionMismatch = "version_mismatch"

// ConflictBody is the structured payload of a failed precondition.
type ConflictBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Verdict is the outcome of evaluating conditional headers: either let the
// caller build the full response, or short-circuit with the given status.
type Verdict struct {
	StatusCode int           // 0 means proceed normally
	Conflict   *ConflictBody // set on 412 only
}

// Proceed reports whether the caller should process the request normally.
func (v Verdict) Proceed() bool {
	return v.StatusCode == 0
}

// EvaluateRead decides whether a read can be answered with 304 Not Modified.
// If-None-Match is evaluated before If-Modified-Since. Date comparison is
// truncated to whole seconds, HTTP dates carry no finer precision.
//
// The caller must attach the current tag and Last-Modified to the response
// either way, a 304 still refreshes downstream validators.
func EvaluateRead(cond Conditional, tag string, lastModified time.Time) Verdict {
	if cond.IfNoneMatch.Wildcard {
		return Verdict{StatusCode: http.StatusNotModified}
	}
	if cond.IfNoneMatch.Matches(tag) {
		return Verdict{StatusCode: http.StatusNotModified}
	}

	if !cond.IfModifiedSince.IsZero() && !lastModified.IsZero() {
		modified := lastModified.Truncate(time.Second)
		since := cond.IfModifiedSince.Truncate(time.Second)
		if !modified.After(since) {
			return Verdict{StatusCode: http.StatusNotModified}
		}
	}
	return Verdict{}
}

// CheckPrecondition is the optimistic-concurrency gate for writes. An absent
// If-Match proceeds unconditionally, the wildcard only asserts existence,
// and anything else must match the current tag by value. No locks are taken,
// a concurrent writer is detected purely by the tag comparison.
//
// Unparseable If-Match content resolves to "no match" and therefore 412,
// never 400: a garbled precondition must not authorize an overwrite.
func CheckPrecondition(cond Conditional, tag string) Verdict {
	if !cond.IfMatch.Present {
		return Verdict{}
	}
	if cond.IfMatch.Wildcard {
		return Verdict{}
	}
	if cond.IfMatch.Matches(tag) {
		return Verdict{}
	}

	return Verdict{
		StatusCode: http.StatusPreconditionFailed,
		Conflict: &ConflictBody{
			Code:    ConflictCodeVersionMismatch,
			Message: "resource changed since last read, refetch and retry",
		},
	}
}
