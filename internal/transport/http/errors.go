package http

import (
	"encoding/json"
	"net/http"

	"github.com/lmoreno/stockblock/internal/domain"
)

const (
	codeMethodNotAllowed       = "method_not_allowed"
	codeNotFound               = "not_found"
	codeInvalidRequestBody     = "invalid_request_body"
	codeInvalidID              = "invalid_id"
	codeCodeRequired           = "sku_code_required"
	codeNameRequired           = "name_required"
	codeReasonRequired         = "reason_required"
	codeInvalidQuantity        = "invalid_quantity"
	codeInvalidPrice           = "invalid_price"
	codeInvalidExpiry          = "invalid_expires_at"
	codeDuplicateSkuCode       = "duplicate_sku_code"
	codeSkuNotFound            = "sku_not_found"
	codeBlockNotFound          = "block_not_found"
	codeInsufficientInventory  = "insufficient_inventory"
	codeInvalidStateTransition = "invalid_state_transition"
	codeForbidden              = "forbidden"
	codeInternalError          = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Populated only for insufficient_inventory.
	Available *int `json:"available,omitempty"`
	Requested *int `json:"requested,omitempty"`
	// Populated only for invalid_state_transition.
	CurrentStatus string `json:"current_status,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorResponse(w, status, errorResponse{Error: msg, Code: code})
}

func writeInsufficientInventory(w http.ResponseWriter, e *domain.InsufficientInventoryError) {
	available, requested := e.Available, e.Requested
	writeErrorResponse(w, http.StatusConflict, errorResponse{
		Error:     e.Error(),
		Code:      codeInsufficientInventory,
		Available: &available,
		Requested: &requested,
	})
}

func writeInvalidTransition(w http.ResponseWriter, e *domain.InvalidTransitionError) {
	writeErrorResponse(w, http.StatusConflict, errorResponse{
		Error:         e.Error(),
		Code:          codeInvalidStateTransition,
		CurrentStatus: string(e.Current),
	})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(resp)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}
