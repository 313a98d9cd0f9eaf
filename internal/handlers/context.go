package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/dashpad/authd/internal/middleware"
	"github.com/dashpad/authd/pkg/errors"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated account id placed by middleware.Auth.
func currentUserID(c *gin.Context) (string, error) {
	id := c.GetString(middleware.CtxUserIDKey)
	if id == "" {
		return "", errors.ErrUnauthorized
	}
	return id, nil
}
