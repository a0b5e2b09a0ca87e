package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhub/internal/apperr"
	"taskhub/internal/middleware"
)

func (h HandlerSet) GenerateMFASetup(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.AbortWithError(c, apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Access token not found"))
		return
	}

	setup, err := h.mfa.GenerateSetup(c.Request.Context(), user.ID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	if setup.Enabled {
		c.JSON(http.StatusOK, gin.H{"message": setup.Message, "enabled": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    setup.Message,
		"enabled":    false,
		"secret":     setup.Secret,
		"otpauthUrl": setup.OTPAuthURL,
		"qrImageUrl": setup.QRImageURL,
	})
}

type verifyMFASetupRequest struct {
	Code      string `json:"code" binding:"required,len=6,numeric"`
	SecretKey string `json:"secretKey" binding:"required"`
}

func (h HandlerSet) VerifyMFASetup(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.AbortWithError(c, apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Access token not found"))
		return
	}

	var req verifyMFASetupRequest
	if !bindJSON(c, &req) {
		return
	}

	status, err := h.mfa.VerifySetup(c.Request.Context(), user.ID, req.Code, req.SecretKey)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": status.Message, "enabled": status.Enabled})
}

func (h HandlerSet) RevokeMFA(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.AbortWithError(c, apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Access token not found"))
		return
	}

	status, err := h.mfa.Revoke(c.Request.Context(), user.ID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": status.Message, "enabled": status.Enabled})
}

type verifyMFALoginRequest struct {
	Code  string `json:"code" binding:"required,len=6,numeric"`
	Email string `json:"email" binding:"required,email"`
}

func (h HandlerSet) VerifyMFALogin(c *gin.Context) {
	var req verifyMFALoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.mfa.VerifyForLogin(c.Request.Context(), req.Code, req.Email, c.GetHeader("User-Agent"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	h.setAccessCookie(c, result.Tokens.AccessToken)
	h.setRefreshCookie(c, result.Tokens.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"message": "Verified and logged in successfully",
		"user":    newUserResponse(result.User),
	})
}
