package binance

import (
	"encoding/json"
	"testing"
)

const wsFinalKline = `{
	"e": "kline", "E": 1700000060123, "s": "BTCUSDT",
	"k": {
		"t": 1700000000000, "T": 1700000059999, "s": "BTCUSDT", "i": "1m",
		"o": "35000.10", "c": "35050.20", "h": "35060.00", "l": "34990.50",
		"v": "123.456", "x": true
	}
}`

func TestParseKlineEvent_Final(t *testing.T) {
	ev, ok, err := ParseKlineEvent([]byte(wsFinalKline))
	if err != nil {
		t.Fatalf("ParseKlineEvent: %v", err)
	}
	if !ok {
		t.Fatal("expected a kline event")
	}

	if ev.Symbol != "BTCUSDT" || ev.Interval != "1m" {
		t.Errorf("identity wrong: %s %s", ev.Symbol, ev.Interval)
	}
	if !ev.Final {
		t.Error("expected final event")
	}
	if ev.Open != 35000.10 || ev.Close != 35050.20 || ev.High != 35060.00 || ev.Low != 34990.50 {
		t.Errorf("OHLC wrong: %+v", ev)
	}
	if ev.Volume != 123.456 {
		t.Errorf("volume wrong: %v", ev.Volume)
	}
	if ev.OpenTime != 1700000000000 || ev.CloseTime != 1700000059999 || ev.EventTime != 1700000060123 {
		t.Errorf("timestamps wrong: %+v", ev)
	}
}

func TestParseKlineEvent_Provisional(t *testing.T) {
	msg := `{"e":"kline","E":1700000030000,"s":"BTCUSDT","k":{"t":1700000000000,"T":1700000059999,"s":"BTCUSDT","i":"1m","o":"100","c":"101","h":"102","l":"99","v":"1","x":false}}`
	ev, ok, err := ParseKlineEvent([]byte(msg))
	if err != nil || !ok {
		t.Fatalf("ParseKlineEvent: ok=%v err=%v", ok, err)
	}
	if ev.Final {
		t.Error("expected provisional event")
	}
}

func TestParseKlineEvent_IgnoresNonKlineFrames(t *testing.T) {
	for _, msg := range []string{
		`{"result":null,"id":1}`,
		`{"e":"aggTrade","E":1,"s":"BTCUSDT"}`,
	} {
		_, ok, err := ParseKlineEvent([]byte(msg))
		if err != nil {
			t.Errorf("non-kline frame %q: unexpected error %v", msg, err)
		}
		if ok {
			t.Errorf("non-kline frame %q reported as kline", msg)
		}
	}
}

func TestParseKlineEvent_BadPrice(t *testing.T) {
	msg := `{"e":"kline","E":1,"s":"BTCUSDT","k":{"t":1,"T":2,"s":"BTCUSDT","i":"1m","o":"oops","c":"1","h":"2","l":"0","v":"1","x":true}}`
	if _, _, err := ParseKlineEvent([]byte(msg)); err == nil {
		t.Error("expected error for unparseable price")
	}
}

func TestParseKlineRows(t *testing.T) {
	payload := `[
		[1700000000000,"100.0","110.0","90.0","105.0","12.5",1700000059999,"x",0,"y","z","i"],
		[1700000060000,"105.0","115.0","95.0","108.0","7.25",1700000119999,"x",0,"y","z","i"]
	]`
	var rows []RawKline
	if err := json.Unmarshal([]byte(payload), &rows); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	bars, err := ParseKlineRows(rows)
	if err != nil {
		t.Fatalf("ParseKlineRows: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}

	first := bars[0]
	if first.Open != 100.0 || first.High != 110.0 || first.Low != 90.0 || first.Close != 105.0 {
		t.Errorf("first bar OHLC wrong: %+v", first)
	}
	if first.Volume != 12.5 || first.CloseTime != 1700000059999 {
		t.Errorf("first bar volume/close time wrong: %+v", first)
	}
	if bars[1].CloseTime != 1700000119999 {
		t.Errorf("second bar close time wrong: %d", bars[1].CloseTime)
	}
}

func TestParseKlineRows_ShortRow(t *testing.T) {
	var rows []RawKline
	if err := json.Unmarshal([]byte(`[[1700000000000,"1","2","0","1"]]`), &rows); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	if _, err := ParseKlineRows(rows); err == nil {
		t.Error("expected error for truncated kline row")
	}
}

func TestStreamURL(t *testing.T) {
	got := StreamURL("wss://fstream.binance.com/ws/", "BTCUSDT", "1m")
	want := "wss://fstream.binance.com/ws/btcusdt@kline_1m"
	if got != want {
		t.Errorf("StreamURL = %q, want %q", got, want)
	}
}
