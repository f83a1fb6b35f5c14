package futures

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/NaierGG/Nierade/internal/apperr"
	"github.com/NaierGG/Nierade/internal/httputil"
	"github.com/NaierGG/Nierade/internal/model"
	"github.com/NaierGG/Nierade/internal/types"
)

type WalletReader interface {
	Provision(ctx context.Context, guestID string) error
	GetSpotAccount(ctx context.Context, guestID string) (model.SpotAccount, error)
	GetFuturesAccount(ctx context.Context, guestID string) (model.FuturesAccount, error)
}

type Handler struct {
	svc     *Service
	wallets WalletReader
}

func NewHandler(svc *Service, wallets WalletReader) *Handler {
	return &Handler{svc: svc, wallets: wallets}
}

func parseDecimalField(value, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, apperr.Validation("invalid " + field)
	}
	return d, nil
}

func parseOptionalDecimal(value, field string) (*decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	d, err := parseDecimalField(value, field)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type openRequest struct {
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Leverage     int    `json:"leverage"`
	Margin       string `json:"margin"`
	CurrentPrice string `json:"currentPrice,omitempty"`
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request, guestID string) {
	var req openRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	margin, err := parseDecimalField(req.Margin, "margin")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	currentPrice, err := parseOptionalDecimal(req.CurrentPrice, "currentPrice")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	res, err := h.svc.Open(r.Context(), OpenRequest{
		GuestID:      guestID,
		Symbol:       req.Symbol,
		Side:         types.FuturesSide(strings.ToUpper(req.Side)),
		Leverage:     req.Leverage,
		Margin:       margin,
		CurrentPrice: currentPrice,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, res)
}

type closeRequest struct {
	Symbol       string `json:"symbol"`
	CurrentPrice string `json:"currentPrice,omitempty"`
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request, guestID string) {
	var req closeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	currentPrice, err := parseOptionalDecimal(req.CurrentPrice, "currentPrice")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	res, err := h.svc.Close(r.Context(), guestID, req.Symbol, currentPrice)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, res)
}

type addMarginRequest struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

func (h *Handler) AddMargin(w http.ResponseWriter, r *http.Request, guestID string) {
	var req addMarginRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	amount, err := parseDecimalField(req.Amount, "amount")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	pos, err := h.svc.AddMargin(r.Context(), guestID, req.Symbol, amount)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"position": pos})
}

func (h *Handler) CheckLiquidation(w http.ResponseWriter, r *http.Request, guestID string) {
	sweep, err := h.svc.CheckLiquidations(r.Context(), guestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, sweep)
}

type transferRequest struct {
	Direction string `json:"direction"`
	Amount    string `json:"amount"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request, guestID string) {
	var req transferRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	amount, err := h.svc.Transfer(r.Context(), guestID, types.TransferDirection(strings.ToUpper(req.Direction)), req.Amount)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	spot, err := h.wallets.GetSpotAccount(r.Context(), guestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	fut, err := h.wallets.GetFuturesAccount(r.Context(), guestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"amount":  amount,
		"wallets": TransferResult{SpotCash: spot.CashUSDT, FuturesCash: fut.CashUSDT},
	})
}

func (h *Handler) Positions(w http.ResponseWriter, r *http.Request, guestID string) {
	if err := h.wallets.Provision(r.Context(), guestID); err != nil {
		httputil.Error(w, err)
		return
	}
	positions, err := h.svc.Positions(r.Context(), guestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	account, err := h.wallets.GetFuturesAccount(r.Context(), guestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"account": account, "positions": positions})
}

func (h *Handler) Trades(w http.ResponseWriter, r *http.Request, guestID string) {
	trades, err := h.svc.Trades(r.Context(), guestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"trades": trades})
}
