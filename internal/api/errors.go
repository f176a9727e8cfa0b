package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"trading-alerts/internal/indicator"
	"trading-alerts/internal/marketdata"
	"trading-alerts/internal/model"
)

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalid),
		errors.Is(err, indicator.ErrUnknownIndicator),
		errors.Is(err, indicator.ErrInvalidParam),
		errors.Is(err, indicator.ErrUnknownOutput),
		errors.Is(err, marketdata.ErrUnknownTimeframe):
		return http.StatusBadRequest
	case errors.Is(err, marketdata.ErrCircuitOpen), errors.Is(err, marketdata.ErrNoData):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func notFound(c *gin.Context, what, key string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " " + key + " not found"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
