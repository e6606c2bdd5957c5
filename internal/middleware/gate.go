// gate.go implements the optional dashboard password.
//
// When DASHBOARD_PASSWORD_HASH is empty the gate is open. Otherwise a
// session must have submitted the password once; the flag lives in the
// signed session cookie, so no server-side state is needed.
package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

// HashPassword returns a bcrypt hash suitable for DASHBOARD_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordGate returns middleware that requires an authenticated session
// when passwordHash is set. API requests get 401 JSON; page requests are
// redirected to the login form.
func PasswordGate(passwordHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if passwordHash == "" {
			c.Next()
			return
		}
		if claims := GetSession(c); claims != nil && claims.Authenticated {
			c.Next()
			return
		}

		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "Log in at /login first",
				Code:    http.StatusUnauthorized,
			})
			c.Abort()
			return
		}

		c.Redirect(http.StatusSeeOther, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		c.Abort()
	}
}

// SafeNext keeps post-login redirects on this site.
func SafeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
