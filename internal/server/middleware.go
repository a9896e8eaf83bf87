package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/branchd-dev/queuemon/internal/auth"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	authRealm       = `Basic realm="queuemon"`
)

var (
	ErrMissingCredentials = errors.New("missing basic auth credentials")
	ErrInvalidCredentials = errors.New("invalid basic auth credentials")
)

func respondWithError(c *gin.Context, log zerolog.Logger, statusCode int, err error, message string) {
	log.Warn().
		Err(err).
		Str("path", c.Request.URL.Path).
		Str("client_ip", c.ClientIP()).
		Msg(message)
	c.JSON(statusCode, gin.H{"error": message})
	c.Abort()
}

// requestIDMiddleware propagates X-Request-ID or assigns a new ULID.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = ulid.Make().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// BasicAuthMiddleware requires one of accounts on every request except GETs
// of a path in public. Other methods on a public path still need credentials
// since they fall through to the dashboard.
func BasicAuthMiddleware(accounts auth.Accounts, log zerolog.Logger, public ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(public))
	for _, p := range public {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		username, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", authRealm)
			respondWithError(c, log, http.StatusUnauthorized, ErrMissingCredentials, "Access denied")
			return
		}

		if !accounts.Verify(username, password) {
			c.Header("WWW-Authenticate", authRealm)
			respondWithError(c, log, http.StatusUnauthorized, ErrInvalidCredentials, "Access denied")
			return
		}

		c.Next()
	}
}
