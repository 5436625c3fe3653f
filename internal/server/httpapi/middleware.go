package httpapi

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/photokeeper/internal/common"
	"github.com/gin-gonic/gin"
)

const accountIDKey = "accountID"

// requireSession accepts "Authorization: Bearer <session token>" and stores
// the account id in the gin context.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(common.AuthorizationHeaderName)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "No token provided"})
			return
		}

		token := strings.TrimPrefix(authHeader, common.BearerPrefix)
		if token == authHeader || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "No token provided"})
			return
		}

		accountID, errToken := s.issuer.VerifySession(strings.TrimSpace(token))
		if errToken != nil {
			code, msg := statusFor(errToken)
			c.AbortWithStatusJSON(code, gin.H{"msg": msg})
			return
		}

		c.Set(accountIDKey, accountID)
		c.Next()
	}
}

// observe logs every request and records it in the HTTP metrics. The route
// label is the registered pattern, so ids in paths do not explode the series.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		s.metrics.HTTPRequest(c.Request.Method, route, strconv.Itoa(status), elapsed)
		s.logger.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed,
		)
	}
}

// cors answers browser preflights and tags responses for allowed origins.
func (s *Server) cors() gin.HandlerFunc {
	allowAll := slices.Contains(s.opts.CORSOrigins, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || slices.Contains(s.opts.CORSOrigins, origin)) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions && origin != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
