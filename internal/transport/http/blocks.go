package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lmoreno/stockblock/internal/app"
	"github.com/lmoreno/stockblock/internal/domain"
)

// BlockService is the lifecycle surface the block handlers depend on.
type BlockService interface {
	CreateBlock(ctx context.Context, in app.CreateBlockInput) (domain.TemporaryBlock, error)
	ConvertToPermanent(ctx context.Context, in app.TransitionBlockInput) (domain.TemporaryBlock, error)
	CancelBlock(ctx context.Context, in app.TransitionBlockInput) (domain.TemporaryBlock, error)
	ListActiveBlocks(ctx context.Context) ([]domain.ActiveBlock, error)
}

// HandleCreateBlock returns an HTTP handler for
// POST /api/sku/{sku_id}/temporary-block.
func HandleCreateBlock(svc BlockService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skuID, ok := parseCreateBlockPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createBlockRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if code, err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, code, err.Error())
			return
		}

		block, err := svc.CreateBlock(r.Context(), app.CreateBlockInput{
			SkuID:     skuID,
			Quantity:  req.Quantity,
			Reason:    req.Reason,
			ExpiresAt: req.ExpiresAt,
		})
		if err != nil {
			writeBlockError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(blockResponse{
			BlockID:   block.ID,
			SkuID:     block.SkuID,
			Quantity:  block.Quantity,
			Reason:    block.Reason,
			Status:    string(block.Status),
			ExpiresAt: block.ExpiresAt,
			CreatedAt: block.CreatedAt,
		})
	}
}

// HandleListBlocks returns an HTTP handler for GET /api/temporary-blocks.
func HandleListBlocks(svc BlockService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		blocks, err := svc.ListActiveBlocks(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		items := make([]blockWithSkuResponse, 0, len(blocks))
		for _, b := range blocks {
			items = append(items, blockWithSkuResponse{
				BlockID:   b.ID,
				SkuID:     b.SkuID,
				SkuCode:   b.SkuCode,
				Quantity:  b.Quantity,
				Reason:    b.Reason,
				Status:    string(b.Status),
				ExpiresAt: b.ExpiresAt,
				CreatedAt: b.CreatedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(listBlocksResponse{
			Blocks: items,
			Total:  len(items),
		})
	}
}

// HandleBlockTransition returns an HTTP handler for
// POST /api/temporary-blocks/{block_id}/convert-to-permanent and
// POST /api/temporary-blocks/{block_id}/cancel.
func HandleBlockTransition(svc BlockService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blockID, action, ok := parseTransitionPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req transitionBlockRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.Reason == "" || len(req.Reason) > 500 {
			writeError(w, http.StatusBadRequest, codeReasonRequired, "reason must be 1 to 500 characters")
			return
		}

		in := app.TransitionBlockInput{BlockID: blockID, Reason: req.Reason}

		var (
			block domain.TemporaryBlock
			err   error
		)
		switch action {
		case actionConvert:
			block, err = svc.ConvertToPermanent(r.Context(), in)
		case actionCancel:
			block, err = svc.CancelBlock(r.Context(), in)
		}
		if err != nil {
			writeBlockError(w, err)
			return
		}

		resp := transitionBlockResponse{
			BlockID: block.ID,
			Status:  string(block.Status),
			Reason:  block.Reason,
		}
		if block.ConvertedAt != nil {
			resp.ConvertedAt = block.ConvertedAt
		}
		if block.CancelledAt != nil {
			resp.CancelledAt = block.CancelledAt
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func writeBlockError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientInventoryError
	var transition *domain.InvalidTransitionError

	switch {
	case errors.As(err, &insufficient):
		writeInsufficientInventory(w, insufficient)
	case errors.As(err, &transition):
		writeInvalidTransition(w, transition)
	case errors.Is(err, domain.ErrSkuNotFound):
		writeError(w, http.StatusNotFound, codeSkuNotFound, err.Error())
	case errors.Is(err, domain.ErrBlockNotFound):
		writeError(w, http.StatusNotFound, codeBlockNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrInvalidExpiry):
		writeError(w, http.StatusBadRequest, codeInvalidExpiry, err.Error())
	case errors.Is(err, domain.ErrReasonRequired):
		writeError(w, http.StatusBadRequest, codeReasonRequired, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func parseCreateBlockPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 {
		return "", false
	}
	if parts[0] != "api" || parts[1] != "sku" || parts[3] != "temporary-block" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

const (
	actionConvert = "convert-to-permanent"
	actionCancel  = "cancel"
)

func parseTransitionPath(path string) (blockID, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 {
		return "", "", false
	}
	if parts[0] != "api" || parts[1] != "temporary-blocks" || parts[2] == "" {
		return "", "", false
	}
	if parts[3] != actionConvert && parts[3] != actionCancel {
		return "", "", false
	}
	return parts[2], parts[3], true
}

type createBlockRequest struct {
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r createBlockRequest) validate() (string, error) {
	if r.Quantity <= 0 {
		return codeInvalidQuantity, domain.ErrInvalidQuantity
	}
	if r.Reason == "" || len(r.Reason) > 500 {
		return codeReasonRequired, errors.New("reason must be 1 to 500 characters")
	}
	if r.ExpiresAt.IsZero() {
		return codeInvalidExpiry, domain.ErrInvalidExpiry
	}
	return "", nil
}

type blockResponse struct {
	BlockID   string    `json:"block_id"`
	SkuID     string    `json:"sku_id"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type blockWithSkuResponse struct {
	BlockID   string    `json:"block_id"`
	SkuID     string    `json:"sku_id"`
	SkuCode   string    `json:"sku_code"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type listBlocksResponse struct {
	Blocks []blockWithSkuResponse `json:"blocks"`
	Total  int                    `json:"total"`
}

type transitionBlockRequest struct {
	Reason string `json:"reason"`
}

type transitionBlockResponse struct {
	BlockID     string     `json:"block_id"`
	Status      string     `json:"status"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	Reason      string     `json:"reason"`
}
