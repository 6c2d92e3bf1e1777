package model

import (
	"encoding/json"
	"time"
)

// ChannelState identifies which ingestion channel is currently active.
// Exactly one state holds at any instant, owned by the failover controller.
type ChannelState int

const (
	PrimaryActive ChannelState = iota
	FallbackActive
)

func (s ChannelState) String() string {
	if s == FallbackActive {
		return "fallback"
	}
	return "primary"
}

// MarshalJSON renders the state as its string form.
func (s ChannelState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// CrossSignal reports golden/death cross derived from the two most recent
// (EMA, MA) pairs. Both false when any of the four values is undefined.
type CrossSignal struct {
	GoldenCross bool `json:"golden_cross"`
	DeathCross  bool `json:"death_cross"`
}

// SlopeGate reports whether the EMA slope clears the configured threshold
// in either direction. Both false when the slope is undefined.
type SlopeGate struct {
	LongOK  bool `json:"long_ok"`
	ShortOK bool `json:"short_ok"`
}

// Trade is one executed fill supplied by the trading collaborator.
type Trade struct {
	Time  int64    `json:"time"` // epoch ms
	Side  string   `json:"side"` // "long" / "short" / "close"
	Price float64  `json:"price"`
	Qty   float64  `json:"qty"`
	Fee   float64  `json:"fee"`
	PnL   *float64 `json:"pnl"` // nil for opening fills
}

// Position is the currently open position, if any.
type Position struct {
	Side       string  `json:"side"`
	EntryPrice float64 `json:"entry_price"`
	Qty        float64 `json:"qty"`
	Value      float64 `json:"value"`
}

// Snapshot is the immutable status aggregate built on every update and
// fanned out to subscribers. Indicator fields are pointers so that
// undefined values serialize as JSON null.
type Snapshot struct {
	Symbol   string       `json:"symbol"`
	Interval string       `json:"interval"`
	Channel  ChannelState `json:"channel"`

	CurrentPrice float64  `json:"current_price"`
	EMA          *float64 `json:"ema"`
	MA           *float64 `json:"ma"`
	Slope        *float64 `json:"slope"`

	Cross CrossSignal `json:"cross"`
	Gate  SlopeGate   `json:"slope_gate"`

	RecentKlines []Bar `json:"recent_klines"`
	LatestKline  *Bar  `json:"latest_kline"` // provisional (still forming) bar

	RecentTrades []Trade   `json:"recent_trades"`
	Position     *Position `json:"position"`

	ServerTime  int64     `json:"server_time"` // epoch ms
	AssembledAt time.Time `json:"assembled_at"`
}

// JSON returns the JSON-encoded snapshot.
func (s *Snapshot) JSON() []byte {
	buf, _ := json.Marshal(s)
	return buf
}
