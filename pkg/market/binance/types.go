package binance

// Kline represents a single candlestick with all official Binance fields.
type Kline struct {
	OpenTime            int64   // 0: Open time (ms)
	Open                float64 // 1: Open price
	High                float64 // 2: High price
	Low                 float64 // 3: Low price
	Close               float64 // 4: Close price
	Volume              float64 // 5: Base asset volume
	CloseTime           int64   // 6: Close time (ms)
	QuoteVolume         float64 // 7: Quote asset volume
	NumberOfTrades      int     // 8: Number of trades
	TakerBuyBaseVolume  float64 // 9: Taker buy base asset volume
	TakerBuyQuoteVolume float64 // 10: Taker buy quote asset volume
	// Field 11 is unused/ignore
}

// KlineQuery selects one page of klines.
// Zero StartTime/EndTime leave the bound to Binance (most recent klines).
type KlineQuery struct {
	Symbol    string
	Interval  string
	Limit     int
	StartTime int64 // ms
	EndTime   int64 // ms
}
