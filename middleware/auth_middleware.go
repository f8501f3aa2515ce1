package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"storefront/api/models"
	"storefront/api/utils"
)

// Context keys set by Auth.
const (
	CtxUserID    = "user_id"
	CtxUserEmail = "user_email"
	CtxUserRole  = "user_role"
)

var errNoCredentials = errors.New("no credentials provided")

// Auth authenticates operators by JWT (cookie or bearer header) or by the
// shared X-API-KEY, which carries the admin role.
type Auth struct {
	secret []byte
	apiKey string
}

func NewAuth(jwtSecret, apiKey string) *Auth {
	return &Auth{secret: []byte(jwtSecret), apiKey: apiKey}
}

func (a *Auth) identify(c *gin.Context) (*utils.Claims, error) {
	if key := c.GetHeader("X-API-KEY"); key != "" && a.apiKey != "" {
		if subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) == 1 {
			return &utils.Claims{Email: "api-key", Role: models.RoleAdmin}, nil
		}
	}

	tokenString, err := c.Cookie("jwt_token")
	if err != nil || tokenString == "" {
		tokenString = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if tokenString == "" {
		return nil, errNoCredentials
	}
	return utils.ValidateJWT(tokenString, a.secret)
}

func setIdentity(c *gin.Context, claims *utils.Claims) {
	c.Set(CtxUserID, claims.UserID)
	c.Set(CtxUserEmail, claims.Email)
	c.Set(CtxUserRole, claims.Role)
}

// Required rejects requests without valid credentials.
func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := a.identify(c)
		if err != nil {
			log.Debug().Err(err).Str("path", c.FullPath()).Msg("Unauthenticated request rejected")
			msg := "Unauthorized: Invalid or expired token"
			if errors.Is(err, errNoCredentials) {
				msg = "Unauthorized: No token provided"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// Optional records the caller's identity when credentials are valid and
// otherwise lets the request through anonymously.
func (a *Auth) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := a.identify(c); err == nil {
			setIdentity(c, claims)
		}
		c.Next()
	}
}

// RequireRole must run after Required.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxUserRole) != role {
			log.Warn().Str("email", c.GetString(CtxUserEmail)).Str("required_role", role).
				Str("path", c.FullPath()).Msg("Forbidden: insufficient role")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: " + role + " role required"})
			return
		}
		c.Next()
	}
}
