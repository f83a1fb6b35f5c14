package auth

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

// Guest mints an anonymous identity. No row is written; wallets appear
// lazily on the identity's first trading operation.
func (h *Handler) Guest(w http.ResponseWriter, r *http.Request) {
	httputil.Created(w, map[string]string{"guestId": NewGuestID()})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	GuestID  string `json:"guestId,omitempty"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	token, user, err := h.svc.Register(r.Context(), req.Email, req.Password, req.GuestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, map[string]any{"token": token, "user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	token, user, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"token": token, "user": user})
}

type linkGuestRequest struct {
	GuestID string `json:"guestId"`
}

func (h *Handler) LinkGuest(w http.ResponseWriter, r *http.Request, userID string) {
	var req linkGuestRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	user, err := h.svc.LinkGuest(r.Context(), userID, req.GuestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"user": user})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OK(w, map[string]any{"user": user})
}
