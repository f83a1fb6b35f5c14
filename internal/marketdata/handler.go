package marketdata

import (
	"net/http"

	"github.com/NaierGG/Nierade/internal/httputil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Markets(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.svc.Tickers(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"tickers": tickers})
}

func (h *Handler) Symbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.svc.Symbols(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"symbols": symbols})
}
