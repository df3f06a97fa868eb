package model

// Candle is an OHLCV tuple for one bucket. T is the bucket open time in
// milliseconds, aligned to the timeframe width.
type Candle struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

// CandleFromTrade opens a new candle seeded with the first trade of a bucket.
func CandleFromTrade(bucketOpenMs int64, price, quantity float64) Candle {
	return Candle{
		T: bucketOpenMs,
		O: price,
		H: price,
		L: price,
		C: price,
		V: quantity,
	}
}

// ApplyTrade folds one more trade into the candle.
func (c *Candle) ApplyTrade(price, quantity float64) {
	if price > c.H {
		c.H = price
	}
	if price < c.L {
		c.L = price
	}
	c.C = price
	c.V += quantity
}

// DeltaCandle is an OHLCV-shaped view of signed trade flow within a bucket.
// Each trade contributes +quantity when the aggressor is a buyer and
// -quantity when the aggressor is a seller. O is the first signed delta in
// the bucket, C the latest running sum, H/L the running-sum extremes and V
// the unsigned traded quantity.
type DeltaCandle struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

// DeltaCandleFromTrade opens a new delta candle from the first signed
// contribution of a bucket.
func DeltaCandleFromTrade(bucketOpenMs int64, signedVolume, absoluteVolume float64) DeltaCandle {
	if absoluteVolume < 0 {
		absoluteVolume = 0
	}
	return DeltaCandle{
		T: bucketOpenMs,
		O: signedVolume,
		H: signedVolume,
		L: signedVolume,
		C: signedVolume,
		V: absoluteVolume,
	}
}

// ApplySignedVolume advances the running sum and its extremes.
func (d *DeltaCandle) ApplySignedVolume(signedVolume, absoluteVolume float64) {
	d.C += signedVolume
	if d.C > d.H {
		d.H = d.C
	}
	if d.C < d.L {
		d.L = d.C
	}
	if absoluteVolume > 0 {
		d.V += absoluteVolume
	}
}

// DeltaCandleFromTakerVolume derives a historical delta candle from the
// taker-buy base volume the exchange reports per kline: the signed net flow
// is takerBuy minus the remaining (taker-sell) volume. Running extremes are
// unknown for historical buckets, so H/L collapse onto the 0..C span.
func DeltaCandleFromTakerVolume(bucketOpenMs int64, totalVolume, takerBuyVolume float64) DeltaCandle {
	signed := takerBuyVolume - (totalVolume - takerBuyVolume)
	high := signed
	if high < 0 {
		high = 0
	}
	low := signed
	if low > 0 {
		low = 0
	}
	if totalVolume < 0 {
		totalVolume = 0
	}
	return DeltaCandle{
		T: bucketOpenMs,
		O: 0,
		H: high,
		L: low,
		C: signed,
		V: totalVolume,
	}
}

// Tick is the minimal per-trade payload forwarded to the shell. D is +1 for
// an aggressive buy, -1 for an aggressive sell and 0 for synthetic ticks
// with no direction.
type Tick struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	D int8    `json:"d"`
}
