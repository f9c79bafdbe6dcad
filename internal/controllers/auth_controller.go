package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	logrus "github.com/sirupsen/logrus"

	"bus_tracker/internal/directory"
	"bus_tracker/internal/middleware"
	"bus_tracker/internal/models"
)

type registerInput struct {
	UserName string `json:"userName"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates an account. No token is issued; clients log in next.
// Only a signed-in admin may create another admin.
func (ctl *Controller) Register(c *gin.Context) {
	var input registerInput
	if !bindJSON(c, "Register", &input) {
		return
	}

	user, err := ctl.users.Register(c.Request.Context(), directory.RegisterInput{
		UserName: input.UserName,
		Email:    input.Email,
		Password: input.Password,
		Role:     input.Role,

		AllowAdmin: middleware.Role(c) == models.RoleAdmin,
	})
	if err != nil {
		respondError(c, "Register", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    user,
	})
}

func (ctl *Controller) Login(c *gin.Context) {
	var body struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, "Login", &body) {
		return
	}

	user, err := ctl.users.Authenticate(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		respondError(c, "Login", err)
		return
	}

	token, err := ctl.creds.GenerateToken(user.ID, user.Role)
	if err != nil {
		logrus.WithError(err).Error("Login: could not sign token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token", "code": "internal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// Me returns the caller's own profile.
func (ctl *Controller) Me(c *gin.Context) {
	user, err := ctl.users.Profile(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, "Me", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListUsers is the admin listing, optionally narrowed with ?role=.
func (ctl *Controller) ListUsers(c *gin.Context) {
	users, err := ctl.users.List(c.Request.Context(), c.Query("role"))
	if err != nil {
		respondError(c, "ListUsers", err)
		return
	}
	c.JSON(http.StatusOK, users)
}
