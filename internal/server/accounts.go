package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/ledgercore/internal/account/domain"
)

func (s *Server) CreateAccount(c *gin.Context) {
	var req accountdomain.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.accountSvc.Create(c.Request.Context(), tenantID(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": account})
}

func (s *Server) ListAccounts(c *gin.Context) {
	var query struct {
		Category   string `form:"category"`
		ParentID   string `form:"parent_id"`
		ActiveOnly string `form:"active_only"`
		LeafOnly   string `form:"leaf_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	parentID, err := parseOptionalSnowflakeID(query.ParentID)
	if err != nil {
		AbortWithError(c, newValidationError("parent_id", "invalid_parent_id", "invalid parent_id"))
		return
	}
	activeOnly, err := parseOptionalBool(query.ActiveOnly)
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}
	leafOnly, err := parseOptionalBool(query.LeafOnly)
	if err != nil {
		AbortWithError(c, newValidationError("leaf_only", "invalid_leaf_only", "invalid leaf_only"))
		return
	}

	accounts, err := s.accountSvc.List(c.Request.Context(), tenantID(c), accountdomain.ListAccountRequest{
		Category:   accountdomain.Category(query.Category),
		ParentID:   parentID,
		ActiveOnly: activeOnly != nil && *activeOnly,
		LeafOnly:   leafOnly != nil && *leafOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": accounts})
}

func (s *Server) GetAccountTree(c *gin.Context) {
	tree, err := s.accountSvc.GetTree(c.Request.Context(), tenantID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tree})
}

func (s *Server) GetAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	account, err := s.accountSvc.GetByID(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) UpdateAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req accountdomain.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.accountSvc.Update(c.Request.Context(), tenantID(c), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) DeleteAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.accountSvc.Delete(c.Request.Context(), tenantID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) SeedDefaultChart(c *gin.Context) {
	result, err := s.accountSvc.SeedDefaultChart(c.Request.Context(), tenantID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
