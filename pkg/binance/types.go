package binance

import (
	"encoding/json"
	"fmt"
	"strconv"

	"emastream/internal/model"
)

// RawKline is one row of the REST klines response. Binance futures returns
// each kline as a positional JSON array of mixed numbers and strings:
//
//	[openTime, open, high, low, close, volume, closeTime, ...]
type RawKline []json.RawMessage

// tickerPrice is the /fapi/v1/ticker/price payload.
type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// wsKlineEvent is the combined-stream kline message envelope.
type wsKlineEvent struct {
	EventType string  `json:"e"`
	EventTime int64   `json:"E"`
	Symbol    string  `json:"s"`
	Kline     wsKline `json:"k"`
}

type wsKline struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Final     bool   `json:"x"`
}

// ParseKlineEvent decodes one WS message into a normalized KlineEvent.
// Non-kline messages (subscribe acks, pings) return ok=false with no error.
func ParseKlineEvent(msg []byte) (model.KlineEvent, bool, error) {
	var ev wsKlineEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return model.KlineEvent{}, false, fmt.Errorf("binance: decode ws message: %w", err)
	}
	if ev.EventType != "kline" {
		return model.KlineEvent{}, false, nil
	}

	open, err := parsePrice("open", ev.Kline.Open)
	if err != nil {
		return model.KlineEvent{}, false, err
	}
	high, err := parsePrice("high", ev.Kline.High)
	if err != nil {
		return model.KlineEvent{}, false, err
	}
	low, err := parsePrice("low", ev.Kline.Low)
	if err != nil {
		return model.KlineEvent{}, false, err
	}
	cls, err := parsePrice("close", ev.Kline.Close)
	if err != nil {
		return model.KlineEvent{}, false, err
	}
	vol, err := parsePrice("volume", ev.Kline.Volume)
	if err != nil {
		return model.KlineEvent{}, false, err
	}

	out := model.KlineEvent{
		Symbol:    ev.Symbol,
		Interval:  ev.Kline.Interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		OpenTime:  ev.Kline.OpenTime,
		CloseTime: ev.Kline.CloseTime,
		EventTime: ev.EventTime,
		Final:     ev.Kline.Final,
	}
	if err := out.Validate(); err != nil {
		return model.KlineEvent{}, false, err
	}
	return out, true, nil
}

// ParseKlineRows converts REST kline rows into Bars, oldest first.
func ParseKlineRows(rows []RawKline) ([]model.Bar, error) {
	bars := make([]model.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 7 {
			return nil, fmt.Errorf("binance: kline row %d has %d fields, want >= 7", i, len(row))
		}
		var openTime, closeTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			return nil, fmt.Errorf("binance: kline row %d open time: %w", i, err)
		}
		if err := json.Unmarshal(row[6], &closeTime); err != nil {
			return nil, fmt.Errorf("binance: kline row %d close time: %w", i, err)
		}

		vals := make([]float64, 5)
		for j := 1; j <= 5; j++ {
			var s string
			if err := json.Unmarshal(row[j], &s); err != nil {
				return nil, fmt.Errorf("binance: kline row %d field %d: %w", i, j, err)
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("binance: kline row %d field %d: %w", i, j, err)
			}
			vals[j-1] = f
		}

		bars = append(bars, model.Bar{
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
			CloseTime: closeTime,
		})
	}
	return bars, nil
}

func parsePrice(field, s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: parse %s %q: %w", field, s, err)
	}
	return f, nil
}
