package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"inventory-service/internal/domain"
	"inventory-service/internal/users"
	apperrors "inventory-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Accounts is the part of the user service the auth endpoints need.
type Accounts interface {
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	Register(ctx context.Context, in users.RegisterInput) (*domain.User, error)
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	accounts   Accounts
	jwtManager *JWTManager
	logger     *zap.Logger
}

func NewAuthHandler(accounts Accounts, jwtManager *JWTManager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:   accounts,
		jwtManager: jwtManager,
		logger:     logger,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"admin@example.com"`
	Password string `json:"password" binding:"required" example:"admin123"`
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required" example:"Ada Lovelace"`
	Email    string `json:"email" binding:"required" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"secret123"`
	Address  string `json:"address" example:"12 Analytical St"`
}

type LoginResponse struct {
	Token     string       `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	Type      string       `json:"type" example:"Bearer"`
	ExpiresIn int          `json:"expires_in" example:"600"`
	ExpiresAt time.Time    `json:"expires_at" example:"2024-01-15T12:00:00Z"`
	User      *domain.User `json:"user"`
}

// Login handles POST /api/v1/auth/login
// @Summary      Login and get JWT token
// @Description  Authenticates a user by email and password and returns a bearer token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      LoginRequest  true  "Login credentials"
// @Success      200      {object}  LoginResponse
// @Failure      400      {object}  errors.StandardError
// @Failure      401      {object}  errors.StandardError
// @Failure      429      {object}  errors.StandardError
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid login request", zap.Error(err))
		c.Error(apperrors.NewValidationError("invalid request", "email or password"))
		c.Abort()
		return
	}

	u, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.logger.Warn("Invalid credentials", zap.String("email", domain.NormalizeEmail(req.Email)))
			c.Error(apperrors.NewUnauthorized("invalid credentials", "email or password incorrect"))
		} else {
			c.Error(err)
		}
		c.Abort()
		return
	}

	h.respondWithToken(c, http.StatusOK, u)
}

// Register handles POST /api/v1/auth/register
// @Summary      Register a customer account
// @Description  Creates a customer and returns a bearer token for it
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      RegisterRequest  true  "Account details"
// @Success      201      {object}  LoginResponse
// @Failure      400      {object}  errors.StandardError
// @Failure      409      {object}  errors.StandardError  "Email already registered"
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid register request", zap.Error(err))
		c.Error(apperrors.NewValidationError("invalid request", "name, email or password"))
		c.Abort()
		return
	}

	u, err := h.accounts.Register(c.Request.Context(), users.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Address:  req.Address,
	})
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	h.respondWithToken(c, http.StatusCreated, u)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, u *domain.User) {
	token, expiresAt, err := h.jwtManager.GenerateToken(u)
	if err != nil {
		c.Error(apperrors.NewInternalError("failed to generate token", err))
		c.Abort()
		return
	}

	h.logger.Info("User logged in successfully",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(u.Role)),
		zap.Time("expires_at", expiresAt),
	)

	c.JSON(status, LoginResponse{
		Token:     token,
		Type:      "Bearer",
		ExpiresIn: int(h.jwtManager.TTL().Seconds()),
		ExpiresAt: expiresAt,
		User:      u,
	})
}
