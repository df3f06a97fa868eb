package model

import (
	"fmt"
	"math"
	"strconv"

	json "github.com/goccy/go-json"
)

// AggTrade is an aggregated trade received from the exchange stream:
// multiple fills at one price collapsed into one record with a monotonic
// aggregate id.
type AggTrade struct {
	EventTimeMs  int64
	AggregateID  uint64
	Price        float64
	Quantity     float64
	TradeTimeMs  int64
	IsBuyerMaker bool
}

// Direction maps the buyer-is-maker flag to the shell's tick direction:
// -1 when the aggressor sold into the bid, +1 when the aggressor lifted the
// ask.
func (t AggTrade) Direction() int8 {
	if t.IsBuyerMaker {
		return -1
	}
	return 1
}

// Notional is the USDT-equivalent size of the trade.
func (t AggTrade) Notional() float64 {
	return t.Price * t.Quantity
}

// aggTradeWire mirrors the exchange's aggTrade frame byte-for-byte. Price and
// quantity arrive as quoted decimal strings and are decoded to float64
// without copying the payload buffer.
type aggTradeWire struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggregateID  uint64 `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// ParseAggTrade decodes one aggTrade stream frame. Unknown trailing fields
// are ignored; a wrong event type, unparsable numerics, or a negative
// quantity reject the frame.
func ParseAggTrade(payload []byte) (AggTrade, error) {
	var wire aggTradeWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return AggTrade{}, fmt.Errorf("decode aggTrade frame: %w", err)
	}

	if wire.EventType != "aggTrade" {
		return AggTrade{}, fmt.Errorf("unexpected event type %q on aggTrade stream", wire.EventType)
	}

	price, err := strconv.ParseFloat(wire.Price, 64)
	if err != nil {
		return AggTrade{}, fmt.Errorf("parse aggTrade price: %w", err)
	}
	quantity, err := strconv.ParseFloat(wire.Quantity, 64)
	if err != nil {
		return AggTrade{}, fmt.Errorf("parse aggTrade quantity: %w", err)
	}
	if !isFinite(price) || !isFinite(quantity) || quantity < 0 {
		return AggTrade{}, fmt.Errorf("aggTrade price/quantity out of range (p=%v q=%v)", price, quantity)
	}

	return AggTrade{
		EventTimeMs:  wire.EventTime,
		AggregateID:  wire.AggregateID,
		Price:        price,
		Quantity:     quantity,
		TradeTimeMs:  wire.TradeTime,
		IsBuyerMaker: wire.IsBuyerMaker,
	}, nil
}

// AggTradeSnapshot is the latest aggregate id and price fetched over REST
// during resync.
type AggTradeSnapshot struct {
	AggregateID uint64
	Price       float64
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
