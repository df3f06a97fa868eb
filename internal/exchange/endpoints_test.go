package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"marketstream/internal/model"
)

func Test_WebsocketAggTradeURL(t *testing.T) {
	spot := WebsocketAggTradeURL(model.MarketSpot, "BTCUSDT")
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@aggTrade", spot)

	futures := WebsocketAggTradeURL(model.MarketFuturesUsdm, "BTCUSDT")
	assert.Equal(t, "wss://fstream.binance.com/ws/btcusdt@aggTrade", futures)
}

func Test_ServerTimePath(t *testing.T) {
	assert.Equal(t, "/api/v3/time", serverTimePath(model.MarketSpot))
	assert.Equal(t, "/fapi/v1/time", serverTimePath(model.MarketFuturesUsdm))
}

func Test_AggTradeSnapshotPath(t *testing.T) {
	spot := aggTradeSnapshotPath(model.MarketSpot, "btcusdt")
	assert.Equal(t, "/api/v3/aggTrades?symbol=BTCUSDT&limit=1", spot)

	futures := aggTradeSnapshotPath(model.MarketFuturesUsdm, "btcusdt")
	assert.Equal(t, "/fapi/v1/aggTrades?symbol=BTCUSDT&limit=1", futures)
}

func Test_KlinesPath(t *testing.T) {
	path := klinesPath(model.MarketSpot, "btcusdt", model.Timeframe1w, 300, nil, nil)
	assert.Equal(t, "/api/v3/klines?symbol=BTCUSDT&interval=1w&limit=300", path)

	endMs := int64(1_735_000_000_000)
	withEnd := klinesPath(model.MarketFuturesUsdm, "btcusdt", model.Timeframe1m, 1000, nil, &endMs)
	assert.Equal(t, "/fapi/v1/klines?symbol=BTCUSDT&interval=1m&limit=1000&endTime=1735000000000", withEnd)

	startMs := int64(0)
	withStart := klinesPath(model.MarketSpot, "btcusdt", model.Timeframe1m, 1, &startMs, nil)
	assert.Equal(t, "/api/v3/klines?symbol=BTCUSDT&interval=1m&limit=1&startTime=0", withStart)
}

func Test_ExchangeInfoPath(t *testing.T) {
	assert.Equal(t, "/api/v3/exchangeInfo?permissions=SPOT", exchangeInfoPath(model.MarketSpot))
	assert.Equal(t, "/fapi/v1/exchangeInfo", exchangeInfoPath(model.MarketFuturesUsdm))
}

func Test_RestBaseURLs(t *testing.T) {
	assert.Equal(t, "https://api.binance.com", restBaseURL(model.MarketSpot))
	assert.Equal(t, "https://fapi.binance.com", restBaseURL(model.MarketFuturesUsdm))
}
