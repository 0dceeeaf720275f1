package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	reconciledomain "github.com/smallbiznis/ledgercore/internal/reconciliation/domain"
	"github.com/smallbiznis/ledgercore/pkg/db/pagination"
)

type recordVoucherRequest struct {
	IntermediaryAccountID snowflake.ID    `json:"intermediary_account_id"`
	Subsystem             string          `json:"subsystem"`
	Reference             string          `json:"reference"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	VoucherDate           *Date           `json:"voucher_date"`
}

func (s *Server) CreateIntermediaryAccount(c *gin.Context) {
	var req reconciledomain.CreateIntermediaryAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.reconcileSvc.CreateIntermediaryAccount(c.Request.Context(), tenantID(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": account})
}

func (s *Server) ListIntermediaryAccounts(c *gin.Context) {
	accounts, err := s.reconcileSvc.ListIntermediaryAccounts(c.Request.Context(), tenantID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": accounts})
}

func (s *Server) RecordVoucher(c *gin.Context) {
	var req recordVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	voucher, err := s.reconcileSvc.RecordVoucher(c.Request.Context(), tenantID(c), reconciledomain.RecordVoucherRequest{
		IntermediaryAccountID: req.IntermediaryAccountID,
		Subsystem:             req.Subsystem,
		Reference:             req.Reference,
		Amount:                req.Amount,
		Currency:              req.Currency,
		VoucherDate:           dateValue(req.VoucherDate),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": voucher})
}

func (s *Server) ListVouchers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		IntermediaryAccountID string `form:"intermediary_account_id"`
		Direction             string `form:"direction"`
		Status                string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	accountID, err := parseOptionalSnowflakeID(query.IntermediaryAccountID)
	if err != nil {
		AbortWithError(c, newValidationError("intermediary_account_id", "invalid_intermediary_account_id", "invalid intermediary_account_id"))
		return
	}

	resp, err := s.reconcileSvc.ListVouchers(c.Request.Context(), tenantID(c), reconciledomain.ListVoucherRequest{
		Pagination:            query.Pagination,
		IntermediaryAccountID: accountID,
		Direction:             reconciledomain.Direction(strings.TrimSpace(query.Direction)),
		Status:                reconciledomain.VoucherStatus(strings.TrimSpace(query.Status)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Vouchers, "page_info": resp.PageInfo})
}

func (s *Server) RunAutoReconcile(c *gin.Context) {
	result, err := s.reconcileSvc.RunAutoReconcile(c.Request.Context(), tenantID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListReconciliations(c *gin.Context) {
	var query struct {
		pagination.Pagination
		IntermediaryAccountID string `form:"intermediary_account_id"`
		Status                string `form:"status"`
		RunID                 string `form:"run_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	accountID, err := parseOptionalSnowflakeID(query.IntermediaryAccountID)
	if err != nil {
		AbortWithError(c, newValidationError("intermediary_account_id", "invalid_intermediary_account_id", "invalid intermediary_account_id"))
		return
	}

	resp, err := s.reconcileSvc.ListReconciliations(c.Request.Context(), tenantID(c), reconciledomain.ListMatchRequest{
		Pagination:            query.Pagination,
		IntermediaryAccountID: accountID,
		Status:                reconciledomain.MatchStatus(strings.TrimSpace(query.Status)),
		RunID:                 strings.TrimSpace(query.RunID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Matches, "page_info": resp.PageInfo})
}

func (s *Server) GetReconciliation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	match, err := s.reconcileSvc.GetMatch(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": match})
}

func (s *Server) ConfirmReconciliation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	match, err := s.reconcileSvc.ConfirmMatch(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": match})
}

func (s *Server) RejectReconciliation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	match, err := s.reconcileSvc.RejectMatch(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": match})
}
