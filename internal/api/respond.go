// Package api holds the authenticated inbox HTTP handlers. Every handler
// reads the caller's tenant from the session and scopes its queries to it.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/apperr"
)

func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return n
}
