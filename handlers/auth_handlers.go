// api/handlers/auth_handlers.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"storefront/api/models"
	"storefront/api/store"
	"storefront/api/utils"
)

// UserRepository persists operator accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, email, role string, hashedPassword []byte) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type AuthHandlers struct {
	UserStore UserRepository
	JWTSecret []byte
}

func NewAuthHandlers(userStore UserRepository, jwtSecret string) *AuthHandlers {
	return &AuthHandlers{UserStore: userStore, JWTSecret: []byte(jwtSecret)}
}

// Signup registers an operator. Only an authenticated admin may create
// another admin; everyone else gets the analyst role.
func (h *AuthHandlers) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	role := models.RoleAnalyst
	if req.Role == models.RoleAdmin {
		if c.GetString("user_role") != models.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only admins may create admin accounts"})
			return
		}
		role = models.RoleAdmin
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.UserStore.CreateUser(ctx, req.Email, role, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
			return
		}
		log.Error().Err(err).Msg("Failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "User registered successfully",
		"user_email": user.Email,
		"role":       user.Role,
	})
}

// Login checks credentials and sets the jwt_token cookie.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.UserStore.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Msg("User lookup failed during login")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check credentials"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(req.Password)); err != nil {
		log.Info().Int("user_id", user.ID).Msg("Login failed: password mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokenString, err := utils.GenerateJWT(user, h.JWTSecret)
	if err != nil {
		log.Error().Err(err).Int("user_id", user.ID).Msg("Failed to generate JWT")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetCookie("jwt_token", tokenString, int(time.Hour/time.Second), "/", "", false, true)

	log.Info().Int("user_id", user.ID).Str("role", user.Role).Msg("Operator logged in")
	c.JSON(http.StatusOK, gin.H{
		"message":    "Login successful",
		"user_email": user.Email,
		"role":       user.Role,
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetCookie("jwt_token", "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
