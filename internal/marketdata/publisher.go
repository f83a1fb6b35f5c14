package marketdata

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const publishInterval = 5 * time.Second

// StartPublisher polls the quote feed and pushes each refresh onto the
// bus until ctx is canceled. The feed's own cache absorbs the poll rate,
// so inside the ticker TTL this re-serves cached quotes.
func StartPublisher(ctx context.Context, svc *Service, bus *Bus, log *logrus.Logger) {
	go func() {
		ticker := time.NewTicker(publishInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickers, err := svc.Tickers(ctx)
				if err != nil {
					log.WithError(err).Warn("publisher: ticker refresh failed")
					continue
				}
				bus.Publish(Event{Type: "tickers", Tickers: tickers})
			}
		}
	}()
}
