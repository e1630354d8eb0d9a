package context

import (
	stdcontext "context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	actorIDKey   ctxKey = "actor_id"
	caseIDKey    ctxKey = "case_id"
	vendorIDKey  ctxKey = "vendor_id"
)

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithActor records the user acting on the request.
func WithActor(ctx stdcontext.Context, actorID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, actorIDKey, strings.TrimSpace(actorID))
}

func ActorFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, actorIDKey)
}

func WithCaseID(ctx stdcontext.Context, caseID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, caseIDKey, strings.TrimSpace(caseID))
}

func CaseIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, caseIDKey)
}

func WithVendorID(ctx stdcontext.Context, vendorID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, vendorIDKey, strings.TrimSpace(vendorID))
}

func VendorIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, vendorIDKey)
}

func stringValue(ctx stdcontext.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
