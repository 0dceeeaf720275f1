package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetAccountStatement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	from, err := parseOptionalDate(c.Query("from"))
	if err != nil || from == nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "from is required as YYYY-MM-DD"))
		return
	}
	to, err := parseOptionalDate(c.Query("to"))
	if err != nil || to == nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "to is required as YYYY-MM-DD"))
		return
	}

	statement, err := s.ledgerSvc.GetAccountStatement(c.Request.Context(), tenantID(c), id, *from, *to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": statement})
}

func (s *Server) GetAccountBalance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	balance, err := s.ledgerSvc.GetAccountBalance(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": balance})
}

// GetTrialBalance defaults as_of to today in UTC.
func (s *Server) GetTrialBalance(c *gin.Context) {
	asOf, err := parseOptionalDate(c.Query("as_of"))
	if err != nil {
		AbortWithError(c, newValidationError("as_of", "invalid_as_of", "invalid as_of"))
		return
	}
	if asOf == nil {
		y, m, d := time.Now().UTC().Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		asOf = &today
	}

	trial, err := s.ledgerSvc.GetTrialBalance(c.Request.Context(), tenantID(c), *asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": trial})
}
