package services

import (
	"context"
	"strings"
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

func normaliseUsername(username string) string {
	return strings.TrimSpace(username)
}

// exactlyOne reports whether exactly one of the two identifiers is set.
func exactlyOne(a, b string) bool {
	return (a == "") != (b == "")
}
