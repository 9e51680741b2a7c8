// Package fetch downloads historical daily bars from the Alpaca
// market-data API into a bar store.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"backsim/internal/domain"
	"backsim/internal/store"
	"backsim/internal/util"
)

const (
	defaultBatchSize       = 200
	defaultRateLimitPerMin = 200
	maxAttempts            = 3
	retryBaseDelay         = 2 * time.Second
)

// DailyBarFetcher fetches daily OHLCV bars for an explicit symbol list
// and writes them to a BarStore.
type DailyBarFetcher struct {
	client    *marketdata.Client
	store     store.BarStore
	batchSize int
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewDailyBarFetcher creates a DailyBarFetcher configured with the given
// Alpaca credentials and target store. batchSize and rateLimitPerMin fall
// back to defaults when zero.
func NewDailyBarFetcher(apiKey, apiSecret, dataURL string, s store.BarStore, batchSize, rateLimitPerMin int) *DailyBarFetcher {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = defaultRateLimitPerMin
	}

	return &DailyBarFetcher{
		client:    marketdata.NewClient(opts),
		store:     s,
		batchSize: batchSize,
		limiter:   util.NewRateLimiter(rateLimitPerMin),
		log:       slog.Default().With("component", "fetch"),
	}
}

// Run fetches daily bars for every symbol in the list between start and
// end and writes them to the store. Symbols are fetched in batches; a
// failed batch aborts the run so a retry can resume idempotently (the
// store merges on write).
func (f *DailyBarFetcher) Run(ctx context.Context, symbols []string, start, end time.Time) error {
	if len(symbols) == 0 {
		return fmt.Errorf("fetch: no symbols configured")
	}

	normalized := make([]string, len(symbols))
	for i, sym := range symbols {
		normalized[i] = strings.ToUpper(sym)
	}

	runStart := time.Now()
	var totalBars int

	for i := 0; i < len(normalized); i += f.batchSize {
		batchEnd := min(i+f.batchSize, len(normalized))
		batch := normalized[i:batchEnd]

		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		bars, err := f.fetchBatch(ctx, batch, start, end)
		if err != nil {
			return fmt.Errorf("fetch: batch %v: %w", batch, err)
		}

		if len(bars) > 0 {
			if err := f.store.WriteBars(ctx, bars); err != nil {
				return fmt.Errorf("fetch: writing bars: %w", err)
			}
		}
		totalBars += len(bars)

		f.log.Info("batch done", "symbols", len(batch), "bars", len(bars))
	}

	f.log.Info("complete",
		"symbols", len(normalized),
		"bars", totalBars,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// fetchBatch fetches daily bars for one batch of symbols in a single API
// call, retrying transient failures with backoff.
func (f *DailyBarFetcher) fetchBatch(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	var multiBars map[string][]marketdata.Bar

	err := util.Retry(ctx, maxAttempts, retryBaseDelay, func() error {
		var err error
		multiBars, err = f.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      "sip",
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}
