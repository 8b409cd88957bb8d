package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/api"
	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/vault"
	"whatsapp-crm/internal/whatsapp"
)

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msg("request")
	}
}

// noVault stands in when ENCRYPTION_KEY is unset in permissive mode.
type noVault struct{}

func (noVault) Encrypt(string) (string, error) {
	return "", apperr.Configuration("ENCRYPTION_KEY is not configured")
}

func (noVault) Decrypt(string) (string, error) {
	return "", apperr.Configuration("ENCRYPTION_KEY is not configured")
}

func decrypter(v *vault.Vault) whatsapp.Decrypter {
	if v == nil {
		return noVault{}
	}
	return v
}

func encrypter(v *vault.Vault) api.Encrypter {
	if v == nil {
		return noVault{}
	}
	return v
}
