package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/models"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/pkg/response"
)

// BankHandler exposes the peripheral account and ledger views.
type BankHandler struct {
	svc *services.BankService
}

func NewBankHandler(svc *services.BankService) *BankHandler {
	return &BankHandler{svc: svc}
}

// GET /api/bank/organizations/:org_id
func (h *BankHandler) GetOrganizationAccount(c *gin.Context) {
	account, err := h.svc.OrganizationAccount(requestContext(c), middleware.CurrentUser(c), c.Param("org_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, account)
}

type ensureAccountRequest struct {
	AccountNumber  string  `json:"account_number" validate:"required"`
	BankName       string  `json:"bank_name" validate:"required"`
	OpeningBalance float64 `json:"opening_balance"`
}

// PUT /api/bank/organizations/:org_id
func (h *BankHandler) EnsureOrganizationAccount(c *gin.Context) {
	var req ensureAccountRequest
	if !bindAndValidate(c, &req) {
		return
	}

	account, err := h.svc.EnsureOrganizationAccount(requestContext(c), middleware.CurrentUser(c), c.Param("org_id"), req.AccountNumber, req.BankName, req.OpeningBalance)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, account)
}

type amountRequest struct {
	Amount    float64 `json:"amount" validate:"required"`
	Reference string  `json:"reference"`
}

// POST /api/bank/organizations/:org_id/deposit
func (h *BankHandler) Deposit(c *gin.Context) {
	var req amountRequest
	if !bindAndValidate(c, &req) {
		return
	}

	account, err := h.svc.Deposit(requestContext(c), middleware.CurrentUser(c), models.BankOwnerOrganization, c.Param("org_id"), req.Amount, req.Reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, account)
}

// POST /api/bank/organizations/:org_id/withdraw
func (h *BankHandler) Withdraw(c *gin.Context) {
	var req amountRequest
	if !bindAndValidate(c, &req) {
		return
	}

	account, err := h.svc.Withdraw(requestContext(c), middleware.CurrentUser(c), models.BankOwnerOrganization, c.Param("org_id"), req.Amount, req.Reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, account)
}

// GET /api/bank/organizations/:org_id/ledger
func (h *BankHandler) OrganizationLedger(c *gin.Context) {
	records, err := h.svc.Ledger(requestContext(c), middleware.CurrentUser(c), models.BankOwnerOrganization, c.Param("org_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, records)
}

// GET /api/bank/platform/ledger
func (h *BankHandler) PlatformLedger(c *gin.Context) {
	records, err := h.svc.Ledger(requestContext(c), middleware.CurrentUser(c), models.BankOwnerPlatform, models.PlatformOwnerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, records)
}
