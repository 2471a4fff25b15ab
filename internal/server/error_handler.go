// file: internal/server/error_handler.go
// version: 2.0.0
// guid: 5d6e7f8a-9b0c-1d2e-3f4a-5b6c7d8e9f0a

package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/opencatalog/streamvault/internal/catalogsync"
	"github.com/opencatalog/streamvault/internal/database"
	"github.com/opencatalog/streamvault/internal/engine"
	"github.com/opencatalog/streamvault/internal/query"
)

// ErrorResponse provides a consistent error response format
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Status int    `json:"status"`
}

// RespondWithError sends a standardized error response and logs the error
func (s *Server) RespondWithError(c *gin.Context, statusCode int, message string, code string) {
	entry := s.log.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
		"status": statusCode,
		"client": c.ClientIP(),
	})
	if statusCode >= 500 {
		entry.Error(message)
	} else {
		entry.Warn(message)
	}

	c.JSON(statusCode, ErrorResponse{
		Error:  message,
		Code:   code,
		Status: statusCode,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error response
func (s *Server) RespondWithBadRequest(c *gin.Context, message string) {
	s.RespondWithError(c, http.StatusBadRequest, message, "BAD_REQUEST")
}

// RespondWithNotFound sends a 404 Not Found error response
func (s *Server) RespondWithNotFound(c *gin.Context, message string) {
	s.RespondWithError(c, http.StatusNotFound, message, "NOT_FOUND")
}

// RespondWithInternalError sends a 500 Internal Server Error response
func (s *Server) RespondWithInternalError(c *gin.Context, message string) {
	s.RespondWithError(c, http.StatusInternalServerError, message, "INTERNAL_ERROR")
}

// respondEngineError maps engine error types onto HTTP status codes.
func (s *Server) respondEngineError(c *gin.Context, err error) {
	var invalid *query.InvalidQueryError
	var storage *database.StorageError
	var fetch *catalogsync.FetchError

	switch {
	case errors.As(err, &invalid):
		s.RespondWithError(c, http.StatusBadRequest, err.Error(), "INVALID_QUERY")
	case errors.Is(err, engine.ErrNoCatalog):
		s.RespondWithError(c, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.As(err, &fetch):
		s.RespondWithError(c, http.StatusBadGateway, err.Error(), "FETCH_FAILED")
	case errors.As(err, &storage):
		s.RespondWithError(c, http.StatusInternalServerError, err.Error(), "STORAGE_ERROR")
	default:
		s.RespondWithError(c, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

// ParseQueryInt parses an integer query parameter with a default value
func ParseQueryInt(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.DefaultQuery(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
