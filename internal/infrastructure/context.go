package infrastructure

import (
	"context"

	"github.com/google/uuid"
)

// NewID returns a random UUID v4 string used for request and run IDs
func NewID() string {
	return uuid.New().String()
}

// EnsureRequestID returns ctx with a request ID, generating one if needed
func EnsureRequestID(ctx context.Context) context.Context {
	if GetRequestID(ctx) == "" {
		return WithRequestID(ctx, NewID())
	}
	return ctx
}
