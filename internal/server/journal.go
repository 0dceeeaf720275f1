package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	journaldomain "github.com/smallbiznis/ledgercore/internal/journal/domain"
	"github.com/smallbiznis/ledgercore/pkg/db/pagination"
)

type journalLineRequest struct {
	AccountID   snowflake.ID    `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
}

type createJournalEntryRequest struct {
	EntryDate   *Date                `json:"entry_date"`
	Type        string               `json:"type"`
	Description string               `json:"description"`
	Lines       []journalLineRequest `json:"lines"`

	// Post creates and posts in one step.
	Post bool `json:"post"`
}

type updateJournalEntryRequest struct {
	EntryDate   *Date                `json:"entry_date"`
	Type        *string              `json:"type"`
	Description *string              `json:"description"`
	Lines       []journalLineRequest `json:"lines"`
}

// toLineInputs converts wire lines into tagged amounts. A line with both or
// neither side set is rejected here with the journal's own errors.
func toLineInputs(lines []journalLineRequest) ([]journaldomain.LineInput, error) {
	if lines == nil {
		return nil, nil
	}
	out := make([]journaldomain.LineInput, 0, len(lines))
	for _, line := range lines {
		amount, err := journaldomain.AmountFromColumns(line.Debit, line.Credit)
		if err != nil {
			return nil, err
		}
		out = append(out, journaldomain.LineInput{
			AccountID:   line.AccountID,
			Amount:      amount,
			Description: strings.TrimSpace(line.Description),
		})
	}
	return out, nil
}

func (s *Server) CreateJournalEntry(c *gin.Context) {
	var req createJournalEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	lines, err := toLineInputs(req.Lines)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	create := journaldomain.CreateEntryRequest{
		EntryDate:   dateValue(req.EntryDate),
		Type:        journaldomain.EntryType(req.Type),
		Description: req.Description,
		Lines:       lines,
	}
	var entry journaldomain.JournalEntry
	if req.Post {
		entry, err = s.journalSvc.CreateAndPost(c.Request.Context(), tenantID(c), create)
	} else {
		entry, err = s.journalSvc.Create(c.Request.Context(), tenantID(c), create)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

func (s *Server) ListJournalEntries(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status       string `form:"status"`
		Type         string `form:"type"`
		SourceModule string `form:"source_module"`
		From         string `form:"from"`
		To           string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	from, err := parseOptionalDate(query.From)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalDate(query.To)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	resp, err := s.journalSvc.List(c.Request.Context(), tenantID(c), journaldomain.ListEntryRequest{
		Pagination:   query.Pagination,
		Status:       journaldomain.Status(query.Status),
		Type:         journaldomain.EntryType(query.Type),
		SourceModule: strings.TrimSpace(query.SourceModule),
		From:         from,
		To:           to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}

func (s *Server) GetJournalEntry(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entry, err := s.journalSvc.GetByID(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) UpdateJournalEntry(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateJournalEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	lines, err := toLineInputs(req.Lines)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	update := journaldomain.UpdateEntryRequest{
		Description: req.Description,
		Lines:       lines,
	}
	if req.EntryDate != nil {
		date := req.EntryDate.Time
		update.EntryDate = &date
	}
	if req.Type != nil {
		entryType := journaldomain.EntryType(*req.Type)
		update.Type = &entryType
	}

	entry, err := s.journalSvc.UpdateDraft(c.Request.Context(), tenantID(c), id, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) DeleteJournalEntry(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.journalSvc.DeleteDraft(c.Request.Context(), tenantID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) PostJournalEntry(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entry, err := s.journalSvc.Post(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) ReverseJournalEntry(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entry, err := s.journalSvc.Reverse(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": entry})
}
