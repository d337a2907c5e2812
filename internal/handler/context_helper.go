package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/finguru/backend-api/internal/middleware"
	"github.com/finguru/backend-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.TokenClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}
