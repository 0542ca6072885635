package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
	"backtest_go/internal/infra"
)

// Client is the REST client for the historical-price source (Boundary
// Layer). Every outbound request first acquires the shared rate limiter;
// transient failures are retried per the injected RetryPolicy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    infra.Limiter
	retry      infra.RetryPolicy
	logger     *slog.Logger
}

// NewClient creates a new history API client.
func NewClient(baseURL string, timeout time.Duration, limiter infra.Limiter, retry infra.RetryPolicy) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		limiter: limiter,
		retry:   retry,
		logger:  slog.Default().With("module", "history_client"),
	}
}

// FetchRange requests one chunk of price bars for [start, end] at the
// given bar resolution. The caller is responsible for keeping chunks
// within the source's window limits.
func (c *Client) FetchRange(ctx context.Context, instrument string, start, end time.Time, fidelityMinutes int) ([]domain.PricePoint, error) {
	var points []domain.PricePoint

	err := c.retry.Do(ctx, func() error {
		if err := c.limiter.Acquire(ctx); err != nil {
			return &domain.NetworkFetchError{
				Op: "rate limit acquire", Instrument: instrument,
				Start: start, End: end, Err: err, Retriable: false,
			}
		}

		got, err := c.fetchOnce(ctx, instrument, start, end, fidelityMinutes)
		if err != nil {
			return err
		}
		points = got
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched chunk",
		slog.String("instrument", instrument),
		slog.Time("start", start),
		slog.Time("end", end),
		slog.Int("bars", len(points)))

	return points, nil
}

func (c *Client) fetchOnce(ctx context.Context, instrument string, start, end time.Time, fidelityMinutes int) ([]domain.PricePoint, error) {
	q := url.Values{}
	q.Set("market", instrument)
	q.Set("startTs", strconv.FormatInt(start.Unix(), 10))
	q.Set("endTs", strconv.FormatInt(end.Unix(), 10))
	q.Set("fidelity", strconv.Itoa(fidelityMinutes))

	reqURL := c.baseURL + "/prices-history?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &domain.NetworkFetchError{
			Op: "build request", Instrument: instrument,
			Start: start, End: end, Err: err, Retriable: false,
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", infra.DefaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection resets are worth another attempt.
		return nil, &domain.NetworkFetchError{
			Op: "fetch prices", Instrument: instrument,
			Start: start, End: end, Err: err, Retriable: true,
		}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.NetworkFetchError{
			Op: "read response", Instrument: instrument,
			Start: start, End: end, Err: err, Retriable: true,
		}
	}

	if resp.StatusCode != http.StatusOK {
		// Server-side failures may clear; client errors will not.
		retriable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, &domain.NetworkFetchError{
			Op: "fetch prices", Instrument: instrument,
			Start: start, End: end,
			Err:       fmt.Errorf("api error: status=%d body=%s", resp.StatusCode, string(bodyBytes)),
			Retriable: retriable,
		}
	}

	var apiResp historyResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, &domain.NetworkFetchError{
			Op: "parse response", Instrument: instrument,
			Start: start, End: end, Err: err, Retriable: false,
		}
	}

	return decodeBars(instrument, start, end, apiResp.History)
}

// decodeBars converts wire bars into PricePoints. Boundary conversion:
// string prices are parsed through decimal so malformed values fail loudly
// instead of drifting through float parsing.
func decodeBars(instrument string, start, end time.Time, bars []historyBar) ([]domain.PricePoint, error) {
	points := make([]domain.PricePoint, 0, len(bars))
	for _, bar := range bars {
		price, err := decimal.NewFromString(bar.Price)
		if err != nil {
			return nil, &domain.NetworkFetchError{
				Op: "parse price", Instrument: instrument,
				Start: start, End: end,
				Err:       fmt.Errorf("bar t=%d price=%q: %w", bar.Ts, bar.Price, err),
				Retriable: false,
			}
		}

		p := domain.PricePoint{
			Timestamp: time.Unix(bar.Ts, 0).UTC(),
			Price:     price.InexactFloat64(),
		}
		if bar.Volume != "" {
			vol, err := decimal.NewFromString(bar.Volume)
			if err == nil {
				p.Volume = vol.InexactFloat64()
			}
		}
		points = append(points, p)
	}
	return points, nil
}
