package middleware

import (
	"context"
	"net/http"
)

const (
	OutcomeFull               = "full"
	OutcomeNotModified        = "not-modified"
	OutcomePreconditionFailed = "precondition-failed"
)

type ctxStateKeyStruct struct{}

var ctxStateKey = ctxStateKeyStruct{}

// RequestState carries the conditional-engine outcome of the request so the
// access log can report it: "not-modified", "precondition-failed", "full",
// or "N/A" for routes that never consult the engine.
type RequestState struct {
	conditionalOutcome string
}

func initializeState(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxStateKey, &RequestState{})
}

func SetConditionalOutcome(r *http.Request, value string) {
	if state, ok := r.Context().Value(ctxStateKey).(*RequestState); ok {
		state.conditionalOutcome = value
	}
}

func GetConditionalOutcome(ctx context.Context) string {
	state, ok := ctx.Value(ctxStateKey).(*RequestState)
	if !ok || state.conditionalOutcome == "" {
		return "N/A"
	}
	return state.conditionalOutcome
}

func StateHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(initializeState(r.Context()))
		next.ServeHTTP(w, r)
	})
}
