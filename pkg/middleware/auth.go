package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gilby125/flight-offers-harvester/config"
	"github.com/gin-gonic/gin"
)

// IngestAuth protects the write endpoints. With auth disabled every request
// passes. Bearer tokens are checked before basic credentials.
func IngestAuth(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if cfg.Token != "" && strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) == 1 {
				c.Next()
				return
			}
		}

		if cfg.Username != "" && cfg.Password != "" {
			if username, password, ok := c.Request.BasicAuth(); ok {
				userOK := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Username)) == 1
				passOK := subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) == 1
				if userOK && passOK {
					c.Next()
					return
				}
			}
		}

		c.Header("WWW-Authenticate", `Basic realm="Harvester ingest"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Unauthorized: valid credentials required to ingest offers",
		})
	}
}
