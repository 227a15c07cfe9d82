package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lmoreno/stockblock/internal/app"
	"github.com/lmoreno/stockblock/internal/domain"
)

// SkuCreator is the minimal interface needed to create a SKU.
type SkuCreator interface {
	CreateSku(ctx context.Context, in app.CreateSkuInput) (domain.Sku, error)
}

// HandleCreateSku returns an HTTP handler for POST /api/sku.
func HandleCreateSku(svc SkuCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createSkuRequest
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

		sku, err := svc.CreateSku(r.Context(), app.CreateSkuInput{
			Code:     req.SkuCode,
			Name:     req.Name,
			Quantity: req.Quantity,
			Price:    req.Price,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrDuplicateCode):
				writeError(w, http.StatusConflict, codeDuplicateSkuCode, err.Error())
			case errors.Is(err, domain.ErrCodeRequired):
				writeError(w, http.StatusBadRequest, codeCodeRequired, err.Error())
			case errors.Is(err, domain.ErrNameRequired):
				writeError(w, http.StatusBadRequest, codeNameRequired, err.Error())
			case errors.Is(err, domain.ErrInvalidQuantity):
				writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
			case errors.Is(err, domain.ErrInvalidPrice):
				writeError(w, http.StatusBadRequest, codeInvalidPrice, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(skuResponse{
			SkuID:     sku.ID,
			SkuCode:   sku.Code,
			Name:      sku.Name,
			Quantity:  sku.Quantity,
			Price:     sku.Price,
			CreatedAt: sku.CreatedAt,
		})
	}
}

type createSkuRequest struct {
	SkuCode  string          `json:"sku_code"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

func (r createSkuRequest) validate() (string, error) {
	if r.SkuCode == "" || len(r.SkuCode) > 255 {
		return codeCodeRequired, errors.New("sku_code must be 1 to 255 characters")
	}
	if r.Name == "" || len(r.Name) > 500 {
		return codeNameRequired, errors.New("name must be 1 to 500 characters")
	}
	if r.Quantity < 0 {
		return codeInvalidQuantity, domain.ErrInvalidQuantity
	}
	if !r.Price.IsPositive() || r.Price.Exponent() < -2 {
		return codeInvalidPrice, domain.ErrInvalidPrice
	}
	return "", nil
}

type skuResponse struct {
	SkuID     string          `json:"sku_id"`
	SkuCode   string          `json:"sku_code"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}
