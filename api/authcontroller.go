package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"articlehub/metrics"
	"articlehub/types"

	"github.com/gin-gonic/gin"
)

type authController struct {
	auth         Authenticator
	log          *slog.Logger
	cookieSecure bool
	limiter      *rateLimiter
}

// RegisterAuthRoutes registers login, logout and password change.
func RegisterAuthRoutes(r *gin.Engine, ctl *authController, guard gin.HandlerFunc) {
	g := r.Group("/api")
	g.POST("/login", ctl.limit, ctl.handleLogin)
	g.POST("/logout", ctl.handleLogout)
	g.PUT("/change_password", guard, ctl.handleChangePassword)
}

// LoginRequest is the credential payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChangePasswordRequest carries the current and the replacement password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (ctl *authController) limit(c *gin.Context) {
	if !ctl.limiter.allow(c.ClientIP()) {
		metrics.LoginAttempts.WithLabelValues("limited").Inc()
		c.Header("Retry-After", "60")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts, try again later"})
		return
	}
	c.Next()
}

// handleLogin creates the account on first use, otherwise verifies it, and
// starts a session either way.
func (ctl *authController) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload: " + err.Error()})
		return
	}

	res, err := ctl.auth.Login(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, types.ErrInvalidCredentials) {
		metrics.LoginAttempts.WithLabelValues("denied").Inc()
		ctl.log.WarnContext(c.Request.Context(), "login denied", "username", req.Username, "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}

	ctl.setSessionCookie(c, res.Token, int(time.Until(res.Session.ExpiresAt).Seconds()))
	status, message, outcome := http.StatusOK, "Login successful!", "ok"
	if res.Created {
		status, message, outcome = http.StatusCreated, "User created and login successful!", "created"
	}
	metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	c.JSON(status, gin.H{
		"message":    message,
		"token":      res.Token,
		"expires_at": res.Session.ExpiresAt,
	})
}

// handleLogout revokes the presented session, if any, and clears the cookie.
func (ctl *authController) handleLogout(c *gin.Context) {
	if token := tokenFromRequest(c); token != "" {
		if err := ctl.auth.Logout(c.Request.Context(), token); err != nil {
			respondError(c, ctl.log, err)
			return
		}
	}
	ctl.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful!"})
}

func (ctl *authController) handleChangePassword(c *gin.Context) {
	s, ok := sessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login required"})
		return
	}
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload: " + err.Error()})
		return
	}

	err := ctl.auth.ChangePassword(c.Request.Context(), s.UserID, req.OldPassword, req.NewPassword)
	if errors.Is(err, types.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid old password"})
		return
	}
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully!"})
}

func (ctl *authController) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, maxAge, "/", "", ctl.cookieSecure, true)
}
