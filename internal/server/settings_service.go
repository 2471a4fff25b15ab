// file: internal/server/settings_service.go
// version: 1.0.0
// guid: 5e6f7a8b-9c0d-1e2f-3a4b-5c6d7e8f9a0b

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opencatalog/streamvault/internal/config"
)

// getSettings returns the runtime-adjustable settings.
func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"settings": config.CurrentSettings()})
}

// updateSettings applies a partial settings update and persists it to the
// store and the config file next to the database. Unknown keys reject the
// whole update.
func (s *Server) updateSettings(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		s.RespondWithBadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(req) == 0 {
		s.RespondWithBadRequest(c, "no settings provided")
		return
	}
	if err := config.UpdateSettings(s.engine.Store(), req); err != nil {
		s.RespondWithBadRequest(c, err.Error())
		return
	}
	s.log.WithField("count", len(req)).Info("settings updated")
	c.JSON(http.StatusOK, gin.H{"settings": config.CurrentSettings()})
}
