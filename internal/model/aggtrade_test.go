package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseAggTrade(t *testing.T) {
	payload := []byte(`{"e":"aggTrade","E":123456790,"s":"BTCUSDT","a":55,"p":"1000.5","q":"0.25","T":123456789,"m":false}`)

	trade, err := ParseAggTrade(payload)
	require.NoError(t, err)

	assert.Equal(t, uint64(55), trade.AggregateID)
	assert.Equal(t, int64(123456790), trade.EventTimeMs)
	assert.Equal(t, int64(123456789), trade.TradeTimeMs)
	assert.Equal(t, 1000.5, trade.Price)
	assert.Equal(t, 0.25, trade.Quantity)
	assert.False(t, trade.IsBuyerMaker)
	assert.Equal(t, int8(1), trade.Direction())
	assert.Equal(t, 250.125, trade.Notional())
}

func Test_ParseAggTrade_IgnoresUnknownFields(t *testing.T) {
	// Futures frames add trailing fields; they must be ignored without
	// failing.
	payload := []byte(`{"e":"aggTrade","E":1,"s":"BTCUSDT","a":9,"p":"2.0","q":"3.0","f":100,"l":104,"T":1,"m":true,"M":true}`)

	trade, err := ParseAggTrade(payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), trade.AggregateID)
	assert.Equal(t, int8(-1), trade.Direction())
}

func Test_ParseAggTrade_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "broken price", payload: `{"e":"aggTrade","E":1,"s":"BTCUSDT","a":1,"p":"broken","q":"0.25","T":1,"m":false}`},
		{name: "broken quantity", payload: `{"e":"aggTrade","E":1,"s":"BTCUSDT","a":1,"p":"1.0","q":"x","T":1,"m":false}`},
		{name: "negative quantity", payload: `{"e":"aggTrade","E":1,"s":"BTCUSDT","a":1,"p":"1.0","q":"-1","T":1,"m":false}`},
		{name: "wrong event type", payload: `{"e":"trade","E":1,"s":"BTCUSDT","a":1,"p":"1.0","q":"0.25","T":1,"m":false}`},
		{name: "not json", payload: `ping`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAggTrade([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func Test_Direction(t *testing.T) {
	assert.Equal(t, int8(-1), AggTrade{IsBuyerMaker: true}.Direction())
	assert.Equal(t, int8(1), AggTrade{IsBuyerMaker: false}.Direction())
}
