package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerName = "X-API-Key"

	ownerKey  = "auth.owner_id"
	deviceKey = "auth.device"
)

// Middleware authenticates a request by API key (door devices and tooling)
// or by an owner bearer token. With neither an API key nor an issuer
// configured, authentication is disabled.
func Middleware(apiKey string, issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" && issuer == nil {
			c.Set(deviceKey, true)
			c.Next()
			return
		}

		if provided := c.GetHeader(headerName); provided != "" {
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "invalid API key",
				})
				return
			}
			c.Set(deviceKey, true)
			c.Next()
			return
		}

		bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || issuer == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing credentials",
			})
			return
		}
		ownerID, err := issuer.Validate(bearer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}
		c.Set(ownerKey, ownerID)
		c.Next()
	}
}

// OwnerID returns the owner authenticated by bearer token, if any.
func OwnerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ownerKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// CanAccessOwner reports whether the caller may act for ownerID. API key
// callers may act for any owner; token callers only for themselves.
func CanAccessOwner(c *gin.Context, ownerID uuid.UUID) bool {
	if IsDevice(c) {
		return true
	}
	id, ok := OwnerID(c)
	return ok && id == ownerID
}

// IsDevice reports whether the caller authenticated with the API key, or
// authentication is disabled.
func IsDevice(c *gin.Context) bool {
	return c.GetBool(deviceKey)
}

// RequireDevice rejects owner token callers. It guards operations that are
// not scoped to a single owner, such as the shared face gallery.
func RequireDevice() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsDevice(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "requires a device API key",
			})
			return
		}
		c.Next()
	}
}
