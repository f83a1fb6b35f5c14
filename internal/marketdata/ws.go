package marketdata

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// TickerWS streams ticker events to browser clients. Clients may pass
// ?symbols=BTCUSDT,ETHUSDT to filter the stream.
type TickerWS struct {
	bus      *Bus
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

func NewTickerWS(bus *Bus, origin string, log *logrus.Logger) *TickerWS {
	return &TickerWS{
		bus: bus,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	return strings.EqualFold(r.Header.Get("Origin"), origin)
}

func (h *TickerWS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	filter := parseSymbolFilter(r.URL.Query().Get("symbols"))

	events := h.bus.Subscribe()
	defer h.bus.Unsubscribe(events)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if len(filter) > 0 {
				evt.Tickers = filterTickers(evt.Tickers, filter)
				if len(evt.Tickers) == 0 {
					continue
				}
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func parseSymbolFilter(raw string) map[string]struct{} {
	filter := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		symbol := strings.ToUpper(strings.TrimSpace(part))
		if symbol != "" {
			filter[symbol] = struct{}{}
		}
	}
	return filter
}

func filterTickers(tickers []Ticker, filter map[string]struct{}) []Ticker {
	out := make([]Ticker, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := filter[t.Symbol]; ok {
			out = append(out, t)
		}
	}
	return out
}
