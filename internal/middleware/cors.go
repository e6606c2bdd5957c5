// cors.go configures Cross-Origin Resource Sharing (CORS).
//
// The dashboard pages are same-origin and need no CORS. It is only needed
// for API consumers on another origin, such as a separate frontend
// calling /api/v1 during development, and those callers identify
// themselves with the session cookie.
package middleware

import (
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// CORS returns CORS middleware for the CORS_ORIGIN list.
//
// Listed origins may send credentials. "*" opens the API to every origin
// but without credentials, since browsers refuse a wildcard together with
// cookies. An empty list leaves the server same-origin only.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := normalizeOrigins(allowedOrigins)
	if len(origins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "Location"},
		MaxAge:        12 * time.Hour, // Cache preflight responses
	}
	if slices.Contains(origins, "*") {
		log.Warn().Msg("⚠️  CORS_ORIGIN is *, cross-origin API calls cannot use the session cookie")
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// normalizeOrigins trims entries and drops blanks and trailing slashes, so
// "http://localhost:5173/" matches the browser's Origin header.
func normalizeOrigins(in []string) []string {
	var out []string
	for _, o := range in {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" && !slices.Contains(out, o) {
			out = append(out, o)
		}
	}
	return out
}
