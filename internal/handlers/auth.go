package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhub/internal/apperr"
	"taskhub/internal/middleware"
	"taskhub/internal/service"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
		"user":    newUserResponse(user),
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.auth.VerifyCredentials(c.Request.Context(), req.Email, req.Password, c.GetHeader("User-Agent"))
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindUnauthorized:
			e := apperr.From(err)
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": e.Code, "message": e.Message})
		default:
			middleware.AbortWithError(c, err)
		}
		return
	}

	if result.MFARequired {
		c.JSON(http.StatusOK, gin.H{
			"message":     "Verify MFA authentication",
			"mfaRequired": true,
			"user":        newUserResponse(result.User),
		})
		return
	}

	h.setAccessCookie(c, result.Tokens.AccessToken)
	h.setRefreshCookie(c, result.Tokens.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"message":     "User logged in successfully",
		"mfaRequired": false,
		"user":        newUserResponse(result.User),
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.CurrentSessionID(c)); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "User logged out successfully"})
}

func (h HandlerSet) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(middleware.RefreshTokenCookie)
	if err != nil || refreshToken == "" {
		middleware.AbortWithError(c, apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Missing refresh token"))
		return
	}

	result, err := h.auth.RefreshToken(c.Request.Context(), refreshToken)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	h.setAccessCookie(c, result.AccessToken)
	if result.Rotated() {
		h.setRefreshCookie(c, result.RefreshToken)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Refresh access token successfully"})
}

type verifyEmailRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h HandlerSet) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if !bindJSON(c, &req) {
		return
	}

	if _, err := h.auth.VerifyEmail(c.Request.Context(), req.Code); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully"})
}

func (h HandlerSet) ResendVerification(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.AbortWithError(c, apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Access token not found"))
		return
	}

	if err := h.auth.ResendVerification(c.Request.Context(), user.ID); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Verification email sent"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h HandlerSet) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if _, err := h.auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset email sent"})
}

type resetPasswordRequest struct {
	Password         string `json:"password" binding:"required,min=8,max=128"`
	VerificationCode string `json:"verificationCode" binding:"required"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if _, err := h.auth.ResetPassword(c.Request.Context(), req.Password, req.VerificationCode); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}

func (h HandlerSet) Me(c *gin.Context) {
	current, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.AbortWithError(c, apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Access token not found"))
		return
	}

	user, err := h.auth.CurrentUser(c.Request.Context(), current.ID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": newUserResponse(user)})
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.AbortWithError(c, apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Access token not found"))
		return
	}

	views, err := h.auth.ListSessions(c.Request.Context(), user.ID, middleware.CurrentSessionID(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	resp := make([]sessionResponse, 0, len(views))
	for _, view := range views {
		resp = append(resp, newSessionResponse(view))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": resp})
}

func (h HandlerSet) RevokeSession(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.AbortWithError(c, apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Access token not found"))
		return
	}

	err := h.auth.RevokeSession(c.Request.Context(), user.ID, middleware.CurrentSessionID(c), c.Param("sessionId"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session revoked"})
}
