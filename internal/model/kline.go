package model

import (
	"encoding/json"
	"fmt"
)

// KlineEvent is the normalized candlestick event both ingestion channels
// (WebSocket stream and REST poller) must produce. All timestamps are
// epoch milliseconds. Within one symbol+interval stream CloseTime is
// non-decreasing, and a given CloseTime transitions to Final=true at most
// once.
type KlineEvent struct {
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	EventTime int64   `json:"event_time"`
	Final     bool    `json:"is_final"`
}

// Validate checks the required field set once at the ingestion boundary.
// Events failing validation never reach the indicator engine.
func (k *KlineEvent) Validate() error {
	if k.Symbol == "" {
		return fmt.Errorf("kline event: missing symbol")
	}
	if k.Interval == "" {
		return fmt.Errorf("kline event: missing interval")
	}
	if k.CloseTime <= 0 {
		return fmt.Errorf("kline event: close_time must be positive, got %d", k.CloseTime)
	}
	if k.High < k.Low {
		return fmt.Errorf("kline event: high %.8f below low %.8f", k.High, k.Low)
	}
	return nil
}

// Key returns "symbol:interval", the identity of the stream this event
// belongs to.
func (k *KlineEvent) Key() string {
	return k.Symbol + ":" + k.Interval
}

// Bar returns the event's OHLCV as a Bar.
func (k *KlineEvent) Bar() Bar {
	return Bar{
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
		CloseTime: k.CloseTime,
	}
}

// Bar is one candlestick as carried in snapshots and the recent window.
type Bar struct {
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	buf, _ := json.Marshal(b)
	return buf
}
