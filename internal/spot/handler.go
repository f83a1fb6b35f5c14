package spot

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/NaierGG/Nierade/internal/apperr"
	"github.com/NaierGG/Nierade/internal/httputil"
	"github.com/NaierGG/Nierade/internal/model"
	"github.com/NaierGG/Nierade/internal/types"
)

// AccountReader is the wallet read surface the portfolio endpoint needs.
type AccountReader interface {
	Provision(ctx context.Context, guestID string) error
	GetSpotAccount(ctx context.Context, guestID string) (model.SpotAccount, error)
	Holdings(ctx context.Context, guestID string) ([]model.Holding, error)
}

type Handler struct {
	svc      *Service
	accounts AccountReader
}

func NewHandler(svc *Service, accounts AccountReader) *Handler {
	return &Handler{svc: svc, accounts: accounts}
}

type placeOrderRequest struct {
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	Qty          string `json:"qty"`
	LimitPrice   string `json:"limitPrice,omitempty"`
	CurrentPrice string `json:"currentPrice,omitempty"`
}

func parseOptionalDecimal(value, field string) (*decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, apperr.Validation("invalid " + field)
	}
	return &d, nil
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, guestID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(req.Qty))
	if err != nil {
		httputil.Error(w, apperr.Validation("invalid qty"))
		return
	}
	limitPrice, err := parseOptionalDecimal(req.LimitPrice, "limitPrice")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	currentPrice, err := parseOptionalDecimal(req.CurrentPrice, "currentPrice")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	res, err := h.svc.PlaceOrder(r.Context(), PlaceOrderRequest{
		GuestID:      guestID,
		Symbol:       req.Symbol,
		Side:         types.OrderSide(strings.ToUpper(req.Side)),
		Type:         types.OrderType(strings.ToUpper(req.Type)),
		Qty:          qty,
		LimitPrice:   limitPrice,
		CurrentPrice: currentPrice,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, res)
}

type fillOrderRequest struct {
	CurrentPrice string `json:"currentPrice,omitempty"`
}

func (h *Handler) Fill(w http.ResponseWriter, r *http.Request, guestID string) {
	orderID := chi.URLParam(r, "id")
	var req fillOrderRequest
	if r.ContentLength > 0 {
		if err := httputil.ReadJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
	}
	currentPrice, err := parseOptionalDecimal(req.CurrentPrice, "currentPrice")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	res, err := h.svc.FillLimitOrder(r.Context(), guestID, orderID, currentPrice)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, res)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, guestID string) {
	order, err := h.svc.CancelOrder(r.Context(), guestID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"order": order})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, guestID string) {
	open, recent, err := h.svc.Orders(r.Context(), guestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"open": open, "recent": recent})
}

func (h *Handler) Trades(w http.ResponseWriter, r *http.Request, guestID string) {
	trades, err := h.svc.Trades(r.Context(), guestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"trades": trades})
}

func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request, guestID string) {
	if err := h.accounts.Provision(r.Context(), guestID); err != nil {
		httputil.Error(w, err)
		return
	}
	account, err := h.accounts.GetSpotAccount(r.Context(), guestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	holdings, err := h.accounts.Holdings(r.Context(), guestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"account": account, "holdings": holdings})
}

// Sweep is the cron entrypoint; the router guards it with the shared
// secret before it gets here.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SweepOpenLimitOrders(r.Context(), 200)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, res)
}
