package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"marketstream/internal/model"
)

// ErrRejected marks a non-retriable exchange rejection (4xx). Callers use it
// to distinguish fatal rejections from transient failures.
var ErrRejected = errors.New("exchange rejected request")

const (
	defaultRequestTimeout    = 10 * time.Second
	defaultServerTimeTimeout = 5 * time.Second

	backoffBaseDelay  = 250 * time.Millisecond
	backoffMaxDelay   = 8 * time.Second
	backoffMaxRetries = 5
	// Jitter spreads retries by +-20% around the exponential delay.
	backoffJitterFraction = 0.2
)

// Config holds optional overrides for the REST client. The zero value maps
// every field to its default; RestBaseURL exists for tests against local
// servers.
type Config struct {
	RestBaseURL       string
	RequestTimeout    time.Duration
	ServerTimeTimeout time.Duration
	MaxAttempts       int
}

// Client is the REST side of the exchange, shared and immutable after
// construction.
type Client struct {
	kind       model.MarketKind
	restBase   string
	httpClient *http.Client

	serverTimeTimeout time.Duration
	maxAttempts       int
}

// NewClient builds a client for one endpoint family. Passing nil config uses
// the production endpoints and default timeouts.
func NewClient(kind model.MarketKind, cfg *Config) *Client {
	requestTimeout := defaultRequestTimeout
	serverTimeTimeout := defaultServerTimeTimeout
	maxAttempts := backoffMaxRetries
	restBase := restBaseURL(kind)

	if cfg != nil {
		if cfg.RestBaseURL != "" {
			restBase = cfg.RestBaseURL
		}
		if cfg.RequestTimeout > 0 {
			requestTimeout = cfg.RequestTimeout
		}
		if cfg.ServerTimeTimeout > 0 {
			serverTimeTimeout = cfg.ServerTimeTimeout
		}
		if cfg.MaxAttempts > 0 {
			maxAttempts = cfg.MaxAttempts
		}
	}

	return &Client{
		kind:              kind,
		restBase:          restBase,
		httpClient:        &http.Client{Timeout: requestTimeout},
		serverTimeTimeout: serverTimeTimeout,
		maxAttempts:       maxAttempts,
	}
}

// Kind returns the endpoint family the client targets.
func (c *Client) Kind() model.MarketKind {
	return c.kind
}

// WebsocketAggTradeURL returns the aggTrade stream URL for a symbol.
func (c *Client) WebsocketAggTradeURL(symbol string) string {
	return WebsocketAggTradeURL(c.kind, symbol)
}

type serverTimeWire struct {
	ServerTime int64 `json:"serverTime"`
}

// ServerTime fetches the exchange wall clock in milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.serverTimeTimeout)
	defer cancel()

	var payload serverTimeWire
	if err := c.getJSON(ctx, serverTimePath(c.kind), &payload); err != nil {
		return 0, err
	}
	return payload.ServerTime, nil
}

type aggTradeSnapshotWire struct {
	AggregateID uint64 `json:"a"`
	Price       string `json:"p"`
}

// LatestAggTradeSnapshot fetches the most recent aggregate trade id and
// price, used by the resync protocol after a sequence gap.
func (c *Client) LatestAggTradeSnapshot(ctx context.Context, symbol string) (model.AggTradeSnapshot, error) {
	var payload []aggTradeSnapshotWire
	if err := c.getJSON(ctx, aggTradeSnapshotPath(c.kind, symbol), &payload); err != nil {
		return model.AggTradeSnapshot{}, err
	}
	if len(payload) == 0 {
		return model.AggTradeSnapshot{}, errors.New("empty aggTrades snapshot payload")
	}

	price, err := decimal.NewFromString(payload[0].Price)
	if err != nil {
		return model.AggTradeSnapshot{}, fmt.Errorf("parse snapshot price: %w", err)
	}

	return model.AggTradeSnapshot{
		AggregateID: payload[0].AggregateID,
		Price:       price.InexactFloat64(),
	}, nil
}

// Klines fetches one page of OHLCV history, newest last, together with the
// delta candles derived from the taker-buy volume column when the response
// carries it. The futures shape appends trailing fields which are ignored.
func (c *Client) Klines(ctx context.Context, symbol string, timeframe model.Timeframe, startMs, endMs *int64, limit int) ([]model.Candle, []model.DeltaCandle, error) {
	if limit <= 0 {
		return nil, nil, nil
	}
	if limit > maxKlinesPerRequest {
		limit = maxKlinesPerRequest
	}

	var rows [][]json.RawMessage
	if err := c.getJSON(ctx, klinesPath(c.kind, symbol, timeframe, limit, startMs, endMs), &rows); err != nil {
		return nil, nil, err
	}

	candles := make([]model.Candle, 0, len(rows))
	deltaCandles := make([]model.DeltaCandle, 0, len(rows))
	for i, row := range rows {
		candle, deltaCandle, hasDelta, err := parseKlineRow(row)
		if err != nil {
			return nil, nil, fmt.Errorf("parse kline row %d: %w", i, err)
		}
		candles = append(candles, candle)
		if hasDelta {
			deltaCandles = append(deltaCandles, deltaCandle)
		}
	}

	// Either every row carries the taker-buy column or none does; a partial
	// delta history would desync the two bootstrap arrays.
	if len(deltaCandles) != len(candles) {
		deltaCandles = deltaCandles[:0]
	}

	return candles, deltaCandles, nil
}

// OldestKlineOpenTime returns the open time of the very first bucket the
// exchange has for the symbol, or nil when no history exists. Used to
// estimate total candle counts for paginated loads.
func (c *Client) OldestKlineOpenTime(ctx context.Context, symbol string, timeframe model.Timeframe) (*int64, error) {
	zero := int64(0)
	var rows [][]json.RawMessage
	if err := c.getJSON(ctx, klinesPath(c.kind, symbol, timeframe, 1, &zero, nil), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil
	}

	var openTime int64
	if err := json.Unmarshal(rows[0][0], &openTime); err != nil {
		return nil, fmt.Errorf("parse oldest kline open time: %w", err)
	}
	return &openTime, nil
}

type exchangeInfoWire struct {
	Symbols []struct {
		Symbol               string `json:"symbol"`
		Status               string `json:"status"`
		IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
		ContractType         string `json:"contractType"`
	} `json:"symbols"`
}

// Symbols lists the tradable symbols of the endpoint family, sorted and
// deduplicated. Spot keeps symbols that allow spot trading; futures keeps
// perpetual contracts. Both require TRADING status.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	var payload exchangeInfoWire
	if err := c.getJSON(ctx, exchangeInfoPath(c.kind), &payload); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(payload.Symbols))
	for _, entry := range payload.Symbols {
		if entry.Status != "TRADING" {
			continue
		}
		if c.kind == model.MarketFuturesUsdm {
			if entry.ContractType != "PERPETUAL" {
				continue
			}
		} else if !entry.IsSpotTradingAllowed {
			continue
		}
		symbols = append(symbols, entry.Symbol)
	}

	sort.Strings(symbols)
	deduped := symbols[:0]
	for i, symbol := range symbols {
		if i == 0 || symbol != symbols[i-1] {
			deduped = append(deduped, symbol)
		}
	}
	return deduped, nil
}

// getJSON performs a GET with retrying semantics: transient network errors
// and 5xx responses back off exponentially (250 ms base, 8 s cap, +-20%
// jitter) for up to maxAttempts tries; 4xx responses fail immediately with
// ErrRejected.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	endpoint := c.restBase + path

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.getOnce(ctx, endpoint)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode %s response: %w", path, err)
			}
			return nil
		}
		if errors.Is(err, ErrRejected) || ctx.Err() != nil {
			return err
		}

		lastErr = err
		log.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt+1).Msg("exchange request failed, retrying")
	}

	return fmt.Errorf("exchange request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) getOnce(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncateBody(body))
	default:
		return nil, fmt.Errorf("server error: status %d", resp.StatusCode)
	}
}

func retryDelay(attempt int) time.Duration {
	delay := backoffBaseDelay << (attempt - 1)
	if delay > backoffMaxDelay {
		delay = backoffMaxDelay
	}
	jitter := 1 - backoffJitterFraction + 2*backoffJitterFraction*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}

func truncateBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}
	return string(body)
}

// parseKlineRow decodes one positional kline entry:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades,
// takerBuyBase, takerBuyQuote, ...]. Numerics arrive as quoted decimal
// strings. Rows shorter than the taker-buy column yield no delta candle.
func parseKlineRow(row []json.RawMessage) (model.Candle, model.DeltaCandle, bool, error) {
	if len(row) < 6 {
		return model.Candle{}, model.DeltaCandle{}, false, fmt.Errorf("kline row has %d fields, want at least 6", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return model.Candle{}, model.DeltaCandle{}, false, fmt.Errorf("open time: %w", err)
	}

	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		value, err := parseQuotedDecimal(row[i+1])
		if err != nil {
			return model.Candle{}, model.DeltaCandle{}, false, err
		}
		fields[i] = value
	}

	volume := fields[4]
	if volume < 0 {
		return model.Candle{}, model.DeltaCandle{}, false, fmt.Errorf("negative kline volume %v", volume)
	}

	candle := model.Candle{
		T: openTime,
		O: fields[0],
		H: fields[1],
		L: fields[2],
		C: fields[3],
		V: volume,
	}

	if len(row) < 10 {
		return candle, model.DeltaCandle{}, false, nil
	}

	takerBuy, err := parseQuotedDecimal(row[9])
	if err != nil || takerBuy < 0 {
		return candle, model.DeltaCandle{}, false, nil
	}

	return candle, model.DeltaCandleFromTakerVolume(openTime, volume, takerBuy), true, nil
}

// parseQuotedDecimal decodes one quoted decimal string to float64 with full
// precision via an exact decimal intermediate.
func parseQuotedDecimal(raw json.RawMessage) (float64, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, fmt.Errorf("quoted decimal: %w", err)
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("quoted decimal %q: %w", text, err)
	}
	return value.InexactFloat64(), nil
}
