package registry

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/charleshuang3/membergate/internal/handlers/firewall"
	"github.com/charleshuang3/membergate/internal/registryclient"
)

const (
	adminRole = "admin"

	// KeyAdminSubject holds the verified admin token subject.
	KeyAdminSubject = "ADMIN_SUBJECT"
)

func (r *Registry) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(registryclient.APIKeyHeader)
		if key == "" {
			firewall.MarkSuspicious(c, "missing api key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing API key"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(r.conf.APIKeyHash), []byte(key)); err != nil {
			firewall.MarkSuspicious(c, "invalid api key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid API key"})
			return
		}

		c.Next()
	}
}

// AdminAuth requires a Bearer token signed by the admin key whose space
// separated roles claim includes admin.
func (r *Registry) AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing bearer token"})
			return
		}

		// Verify the token, this also check if the token is expired.
		token, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.RS256(), r.adminKey))
		if err != nil {
			if errors.Is(err, jwt.TokenExpiredError()) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token expired"})
				return
			}
			// This should never happen unless the requester is cheating.
			firewall.MarkSuspicious(c, "invalid admin token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}

		var roles string
		if err := token.Get("roles", &roles); err != nil || !slices.Contains(strings.Fields(roles), adminRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Admin role required"})
			return
		}

		sub, _ := token.Subject()
		c.Set(KeyAdminSubject, sub)
		c.Next()
	}
}
