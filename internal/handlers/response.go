package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/inzira/ticketing-core/internal/utils"
	"github.com/sirupsen/logrus"
)

// statusForKind maps a domain error kind to its HTTP status
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindInsufficientCapacity:
		return http.StatusConflict
	case models.KindForbidden:
		return http.StatusForbidden
	case models.KindProviderError:
		return http.StatusBadGateway
	case models.KindInvalidState,
		models.KindInvalidPickupDrop,
		models.KindTripNotBookable,
		models.KindInvalidPayload,
		models.KindSignatureInvalid,
		models.KindReferenceMismatch:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes the error response for err. Internal errors are logged
// in full and answered with a generic message.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
	})

	de, ok := models.AsDomainError(err)
	if !ok {
		entry.Error("Request failed with internal error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "internal server error",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	status := statusForKind(de.Kind)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Info("Request rejected")
	}

	message := de.Message
	if message == "" {
		message = strings.ToLower(strings.ReplaceAll(string(de.Kind), "_", " "))
	}

	body := gin.H{
		"error":   strings.ToLower(string(de.Kind)),
		"message": message,
		"code":    string(de.Kind),
	}
	if de.Retryable() {
		body["retryable"] = true
	}
	c.JSON(status, body)
}

// badRequest answers a malformed request body or parameter
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_payload",
		"message": message,
		"code":    string(models.KindInvalidPayload),
	})
}

// uuidParam parses a path parameter as a uuid, answering 400 when it is not one
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// requestMeta captures the caller details recorded in the payment audit trail
func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}
}
