package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
)

// TOTPHeader carries the admin one-time code on mutating requests.
const TOTPHeader = "X-TOTP-Code"

// RequestLogging logs one line per request.
func RequestLogging(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	}
}

// RequireTOTP rejects requests without a valid code for secret. An empty
// secret disables the check.
func RequireTOTP(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		code := c.GetHeader(TOTPHeader)
		if code == "" || !totp.Validate(code, secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing " + TOTPHeader})
			return
		}
		c.Next()
	}
}
