package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/NaierGG/Nierade/internal/apperr"
	"github.com/NaierGG/Nierade/internal/auth"
	"github.com/NaierGG/Nierade/internal/futures"
	"github.com/NaierGG/Nierade/internal/httputil"
	"github.com/NaierGG/Nierade/internal/marketdata"
	"github.com/NaierGG/Nierade/internal/spot"
)

type RouterDeps struct {
	AuthHandler    *auth.Handler
	SpotHandler    *spot.Handler
	FuturesHandler *futures.Handler
	MarketHandler  *marketdata.Handler
	TickerWS       http.Handler
	AuthService    *auth.Service
	CronSecret     string
	CORSOrigin     string
}

type accountHandler func(w http.ResponseWriter, r *http.Request, guestID string)

func withGuest(h accountHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guestID, ok := GuestID(r)
		if !ok {
			httputil.Error(w, apperr.Unauthenticated("no trading identity resolved"))
			return
		}
		h(w, r, guestID)
	}
}

func withUser(h accountHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r)
		if !ok {
			httputil.Error(w, apperr.Unauthenticated("no user resolved"))
			return
		}
		h(w, r, userID)
	}
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(cors(d.CORSOrigin))
	r.Use(SecurityHeaders)
	r.Use(RateLimit)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/guest", d.AuthHandler.Guest)
			r.Post("/register", d.AuthHandler.Register)
			r.Post("/login", d.AuthHandler.Login)
			r.Group(func(r chi.Router) {
				r.Use(WithUser(d.AuthService))
				r.Get("/me", withUser(d.AuthHandler.Me))
				r.Post("/link-guest", withUser(d.AuthHandler.LinkGuest))
			})
		})

		r.Get("/markets", d.MarketHandler.Markets)
		r.Get("/symbols", d.MarketHandler.Symbols)
		r.Get("/markets/ws", d.TickerWS.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(WithAccount(d.AuthService))

			r.Get("/portfolio", withGuest(d.SpotHandler.Portfolio))
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", withGuest(d.SpotHandler.List))
				r.Post("/", withGuest(d.SpotHandler.Place))
				r.Post("/{id}/fill", withGuest(d.SpotHandler.Fill))
				r.Post("/{id}/cancel", withGuest(d.SpotHandler.Cancel))
			})
			r.Get("/trades", withGuest(d.SpotHandler.Trades))

			r.Route("/futures", func(r chi.Router) {
				r.Get("/positions", withGuest(d.FuturesHandler.Positions))
				r.Get("/trades", withGuest(d.FuturesHandler.Trades))
				r.Post("/open", withGuest(d.FuturesHandler.Open))
				r.Post("/close", withGuest(d.FuturesHandler.Close))
				r.Post("/add-margin", withGuest(d.FuturesHandler.AddMargin))
				r.Post("/check-liquidation", withGuest(d.FuturesHandler.CheckLiquidation))
				r.Post("/transfer", withGuest(d.FuturesHandler.Transfer))
			})
		})

		r.Route("/cron", func(r chi.Router) {
			r.Use(CronAuth(d.CronSecret))
			r.Post("/fill-limit-orders", d.SpotHandler.Sweep)
		})
	})

	return r
}

func cors(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Guest-ID, X-Cron-Secret")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
