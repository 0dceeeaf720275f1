package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	autojournaldomain "github.com/smallbiznis/ledgercore/internal/autojournal/domain"
)

// RecordBusinessEvent answers 201 for a new entry and 200 when the event was
// already journaled.
func (s *Server) RecordBusinessEvent(c *gin.Context) {
	var event autojournaldomain.BusinessEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.autoJournal.RecordBusinessEvent(c.Request.Context(), tenantID(c), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": result})
}

func (s *Server) ListBusinessEventRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.autoJournal.Rules()})
}
