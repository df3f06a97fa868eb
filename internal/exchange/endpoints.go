// Package exchange encapsulates the Binance endpoint topology and payload
// shape variance between the spot and USD-M futures markets.
//
// The package exposes a REST client with retrying semantics plus the
// websocket stream URL used by the producer. All REST calls retry transient
// network failures and 5xx responses with exponential backoff and jitter;
// 4xx responses fail fast as non-retriable rejections.
package exchange

import (
	"fmt"
	"strings"

	"marketstream/internal/model"
)

const (
	spotStreamBaseURL    = "wss://stream.binance.com:9443/ws"
	spotRestBaseURL      = "https://api.binance.com"
	futuresStreamBaseURL = "wss://fstream.binance.com/ws"
	futuresRestBaseURL   = "https://fapi.binance.com"

	// maxKlinesPerRequest is the exchange's hard page size for the klines
	// endpoint.
	maxKlinesPerRequest = 1_000
)

func streamBaseURL(kind model.MarketKind) string {
	if kind == model.MarketFuturesUsdm {
		return futuresStreamBaseURL
	}
	return spotStreamBaseURL
}

func restBaseURL(kind model.MarketKind) string {
	if kind == model.MarketFuturesUsdm {
		return futuresRestBaseURL
	}
	return spotRestBaseURL
}

func restPathPrefix(kind model.MarketKind) string {
	if kind == model.MarketFuturesUsdm {
		return "/fapi/v1"
	}
	return "/api/v3"
}

// WebsocketAggTradeURL builds the aggTrade stream URL for a symbol. The
// exchange expects the symbol lower-cased in the stream name.
func WebsocketAggTradeURL(kind model.MarketKind, symbol string) string {
	return fmt.Sprintf("%s/%s@aggTrade", streamBaseURL(kind), strings.ToLower(symbol))
}

func serverTimePath(kind model.MarketKind) string {
	return restPathPrefix(kind) + "/time"
}

func aggTradeSnapshotPath(kind model.MarketKind, symbol string) string {
	return fmt.Sprintf("%s/aggTrades?symbol=%s&limit=1",
		restPathPrefix(kind), strings.ToUpper(symbol))
}

func klinesPath(kind model.MarketKind, symbol string, timeframe model.Timeframe, limit int, startMs, endMs *int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/klines?symbol=%s&interval=%s&limit=%d",
		restPathPrefix(kind), strings.ToUpper(symbol), timeframe, limit)
	if startMs != nil {
		fmt.Fprintf(&b, "&startTime=%d", *startMs)
	}
	if endMs != nil {
		fmt.Fprintf(&b, "&endTime=%d", *endMs)
	}
	return b.String()
}

func exchangeInfoPath(kind model.MarketKind) string {
	if kind == model.MarketFuturesUsdm {
		return "/fapi/v1/exchangeInfo"
	}
	return "/api/v3/exchangeInfo?permissions=SPOT"
}
