package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/api/models"
	"storefront/api/utils"
)

const secret = "test-secret"

func newRouter(a *Auth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(), CORSMiddleware("https://shop.example"))
	r.GET("/admin", a.Required(), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": c.GetString(CtxUserEmail)})
	})
	r.GET("/open", a.Optional(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"role": c.GetString(CtxUserRole)})
	})
	return r
}

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	tok, err := utils.GenerateJWT(&models.User{ID: 1, Email: "ops@example.com", Role: role}, []byte(secret))
	require.NoError(t, err)
	return tok
}

func TestAuthRequired(t *testing.T) {
	r := newRouter(NewAuth(secret, "key-123"))

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"bad token", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"analyst token", map[string]string{"Authorization": "Bearer " + tokenFor(t, models.RoleAnalyst)}, http.StatusForbidden},
		{"admin token", map[string]string{"Authorization": "Bearer " + tokenFor(t, models.RoleAdmin)}, http.StatusOK},
		{"api key", map[string]string{"X-API-KEY": "key-123"}, http.StatusOK},
		{"wrong api key", map[string]string{"X-API-KEY": "key-999"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestEmptyAPIKeyNeverMatches(t *testing.T) {
	r := newRouter(NewAuth(secret, ""))
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-API-KEY", "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	r := newRouter(NewAuth(secret, ""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"role":""}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.AddCookie(&http.Cookie{Name: "jwt_token", Value: tokenFor(t, models.RoleAdmin)})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"role":"admin"}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(NewAuth(secret, ""))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/open", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
}
