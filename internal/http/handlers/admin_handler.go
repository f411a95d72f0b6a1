package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/services"
	"github.com/tbourn/go-order-agent/internal/utils"
)

// ConversationResponse is the admin view of one conversation.
type ConversationResponse struct {
	TenantID     string           `json:"tenant_id"`
	Counterparty string           `json:"counterparty"`
	History      []domain.Message `json:"history"`
	Metadata     domain.Metadata  `json:"metadata"`
	UpdatedAt    *time.Time       `json:"updated_at,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListOrdersResponse wraps a page of orders.
type ListOrdersResponse struct {
	Orders     []domain.OrderRecord `json:"orders"`
	Pagination Pagination           `json:"pagination"`
}

// MenuLookupResponse carries the best catalog match, null when none.
type MenuLookupResponse struct {
	Query string              `json:"query"`
	Item  *domain.CatalogItem `json:"item"`
}

// adminError maps service errors of tenant-scoped calls.
func adminError(c *gin.Context, err error, code string) {
	switch {
	case errors.Is(err, services.ErrTenantNotFound):
		fail(c, http.StatusNotFound, ErrCodeTenantNotFound, "tenant not found")
	case errors.Is(err, services.ErrEmptyCounterparty):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "counterparty is required")
	default:
		fail(c, http.StatusInternalServerError, code, err.Error())
	}
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Get a conversation
// @Description Returns the history and metadata of one tenant conversation. An unknown counterparty yields an empty history.
// @Tags        Conversations
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer admin JWT"
// @Param       tenantId       path    string  true  "Tenant ID"
// @Param       counterparty   path    string  true  "Customer phone number"
//
// @Success     200  {object}  handlers.ConversationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing counterparty"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Token not scoped to this tenant"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenant not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tenants/{tenantId}/conversations/{counterparty} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	tid, cp := c.Param("tenantId"), strings.TrimSpace(c.Param("counterparty"))
	conv, err := h.admin.Conversation(c.Request.Context(), tid, cp)
	if err != nil {
		adminError(c, err, ErrCodeReadFailed)
		return
	}
	resp := ConversationResponse{TenantID: tid, Counterparty: cp, History: []domain.Message{}}
	if conv != nil {
		if conv.History != nil {
			resp.History = conv.History
		}
		resp.Metadata = conv.Metadata
		if !conv.UpdatedAt.IsZero() {
			at := conv.UpdatedAt
			resp.UpdatedAt = &at
		}
	}
	ok(c, http.StatusOK, resp)
}

// ClearConversation godoc
// @ID          clearConversation
// @Summary     Clear a conversation
// @Description Deletes the history and metadata of one tenant conversation.
// @Tags        Conversations
//
// @Param       Authorization  header  string  true  "Bearer admin JWT"
// @Param       tenantId       path    string  true  "Tenant ID"
// @Param       counterparty   path    string  true  "Customer phone number"
//
// @Success     204  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing counterparty"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Token not scoped to this tenant"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenant not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tenants/{tenantId}/conversations/{counterparty} [delete]
func (h *Handlers) ClearConversation(c *gin.Context) {
	err := h.admin.ClearConversation(c.Request.Context(), c.Param("tenantId"), strings.TrimSpace(c.Param("counterparty")))
	if err != nil {
		adminError(c, err, ErrCodeClearFailed)
		return
	}
	noContent(c)
}

// ListOrders godoc
// @ID          listOrders
// @Summary     List orders (paginated)
// @Description Returns confirmed orders of a tenant, newest first, optionally for one counterparty.
// @Tags        Orders
// @Produce     json
//
// @Param       Authorization  header  string  true   "Bearer admin JWT"
// @Param       tenantId       path    string  true   "Tenant ID"
// @Param       counterparty   query   string  false  "Customer phone number"
// @Param       page           query   int     false  "Page number"  minimum(1)  default(1)
// @Param       page_size      query   int     false  "Page size"    minimum(1)  maximum(100)  default(20)
//
// @Success     200  {object}  handlers.ListOrdersResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Token not scoped to this tenant"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenant not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tenants/{tenantId}/orders [get]
func (h *Handlers) ListOrders(c *gin.Context) {
	page, size := utils.Page(c.Query("page"), c.Query("page_size"))
	items, total, err := h.admin.Orders(c.Request.Context(), c.Param("tenantId"), c.Query("counterparty"), page, size)
	if err != nil {
		adminError(c, err, ErrCodeListFailed)
		return
	}
	pages := utils.TotalPages(total, size)
	ok(c, http.StatusOK, ListOrdersResponse{
		Orders: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: pages,
			HasNext:    page < pages,
		},
	})
}

// MenuLookup godoc
// @ID          menuLookup
// @Summary     Look up a menu item
// @Description Returns the best catalog match for q, or a null item when nothing matches.
// @Tags        Menu
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer admin JWT"
// @Param       tenantId       path    string  true  "Tenant ID"
// @Param       q              query   string  true  "Free-text dish name"
//
// @Success     200  {object}  handlers.MenuLookupResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing q"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Token not scoped to this tenant"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenant not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tenants/{tenantId}/menu [get]
func (h *Handlers) MenuLookup(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q is required")
		return
	}
	item, err := h.admin.MenuLookup(c.Request.Context(), c.Param("tenantId"), q)
	if err != nil {
		adminError(c, err, ErrCodeLookupFailed)
		return
	}
	ok(c, http.StatusOK, MenuLookupResponse{Query: q, Item: item})
}
