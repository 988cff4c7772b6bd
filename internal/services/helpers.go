package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validUUID reports whether value parses as a UUID. Record identifiers
// are UUID strings; anything else is rejected before touching the store.
func validUUID(value string) bool {
	_, err := uuid.Parse(strings.TrimSpace(value))
	return err == nil
}
