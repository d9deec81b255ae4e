package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	owner := uuid.New()

	token, exp, err := issuer.Issue(owner, "dana@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	got, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	_, err = NewTokenIssuer("other", time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := issuer.Issue(uuid.New(), "dana@example.com")
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret", time.Minute).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}

func newRouter(apiKey string, issuer *TokenIssuer, target uuid.UUID) *gin.Engine {
	r := gin.New()
	r.Use(Middleware(apiKey, issuer))
	r.GET("/x", func(c *gin.Context) {
		if !CanAccessOwner(c, target) {
			c.Status(http.StatusForbidden)
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	owner := uuid.New()
	token, _, err := issuer.Issue(owner, "dana@example.com")
	require.NoError(t, err)
	otherToken, _, err := issuer.Issue(uuid.New(), "eve@example.com")
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"api key", map[string]string{"X-API-Key": "door-key"}, http.StatusOK},
		{"wrong api key", map[string]string{"X-API-Key": "nope"}, http.StatusForbidden},
		{"owner token", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK},
		{"other owner token", map[string]string{"Authorization": "Bearer " + otherToken}, http.StatusForbidden},
		{"garbage token", map[string]string{"Authorization": "Bearer abc"}, http.StatusUnauthorized},
	}

	r := newRouter("door-key", issuer, owner)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	r := newRouter("", nil, uuid.New())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireDevice(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, _, err := issuer.Issue(uuid.New(), "dana@example.com")
	require.NoError(t, err)

	r := gin.New()
	r.Use(Middleware("door-key", issuer), RequireDevice())
	r.GET("/gallery", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/gallery", nil)
	req.Header.Set("X-API-Key", "door-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/gallery", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
