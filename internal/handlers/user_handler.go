package handlers

import (
	"net/http"

	"inventory-service/internal/domain"
	"inventory-service/internal/users"
	"inventory-service/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserHandler struct {
	logger *zap.Logger
	users  UserService
	views  Views
}

func NewUserHandler(logger *zap.Logger, users UserService, views Views) *UserHandler {
	return &UserHandler{logger: logger, users: users, views: views}
}

// CreateUser handles POST /api/v1/users
// @Summary      Create a user of any role
// @Description  Admins only. Customers sign up through /auth/register.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CreateUserRequest  true  "Account"
// @Success      201      {object}  domain.User
// @Failure      400      {object}  errors.StandardError
// @Failure      403      {object}  errors.StandardError
// @Failure      409      {object}  errors.StandardError  "Email already registered"
// @Router       /users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !bind(c, h.logger, &req) {
		return
	}
	role := req.Role
	if role == "" {
		role = domain.RoleCustomer
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		fail(c, err)
		return
	}

	user, err := h.users.Create(c.Request.Context(), middleware.GetPrincipal(c), users.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Address:  req.Address,
	}, role)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// ListUsers handles GET /api/v1/users
// @Summary      Search users
// @Description  Case-insensitive match on name or email, sorted by name. Admins only.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        q     query     string  false  "Name or email substring"
// @Param        role  query     string  false  "admin or customer"
// @Success      200   {array}   domain.User
// @Failure      400   {object}  errors.StandardError
// @Router       /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	var role domain.Role
	if raw := c.Query("role"); raw != "" {
		parsed, err := domain.ParseRole(raw)
		if err != nil {
			fail(c, err)
			return
		}
		role = parsed
	}
	list, err := h.views.SearchUsers(c.Request.Context(), c.Query("q"), role)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetUser handles GET /api/v1/users/:id
// @Summary      Get a user
// @Description  Users may read themselves; admins read anyone.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  domain.User
// @Failure      403  {object}  errors.StandardError
// @Failure      404  {object}  errors.StandardError
// @Router       /users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUser handles PUT /api/v1/users/:id
// @Summary      Update a user
// @Description  Changes the fields present in the body. Only admins change roles.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string             true  "User ID"
// @Param        request  body      UpdateUserRequest  true  "Fields to change and expected version"
// @Success      200      {object}  domain.User
// @Failure      403      {object}  errors.StandardError
// @Failure      409      {object}  errors.StandardError  "Version conflict or duplicate email"
// @Router       /users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !bind(c, h.logger, &req) {
		return
	}
	if req.Role != nil {
		if _, err := domain.ParseRole(string(*req.Role)); err != nil {
			fail(c, err)
			return
		}
	}

	user, err := h.users.Update(c.Request.Context(), middleware.GetPrincipal(c), id, req.Version, users.Patch{
		Name:     req.Name,
		Email:    req.Email,
		Address:  req.Address,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser handles DELETE /api/v1/users/:id
// @Summary      Delete a user
// @Description  Removes the account, or anonymizes it when orders reference it.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  DeleteUserResponse
// @Failure      403  {object}  errors.StandardError
// @Failure      404  {object}  errors.StandardError
// @Router       /users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := pathID(c, h.logger)
	if !ok {
		return
	}
	anonymized, err := h.users.Delete(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, DeleteUserResponse{ID: id, Anonymized: anonymized})
}
