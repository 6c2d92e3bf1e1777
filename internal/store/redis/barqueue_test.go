package redis

import (
	"context"
	"testing"
	"time"

	"emastream/internal/model"
)

func TestBarQueue_DropsWhenFull(t *testing.T) {
	q := NewBarQueue(2)
	var drops int
	q.OnDrop = func() { drops++ }

	if !q.Enqueue(model.Bar{CloseTime: 1}) || !q.Enqueue(model.Bar{CloseTime: 2}) {
		t.Fatal("enqueue into an empty queue failed")
	}
	if q.Enqueue(model.Bar{CloseTime: 3}) {
		t.Error("enqueue into a full queue should report the drop")
	}
	if drops != 1 {
		t.Errorf("drops=%d, want 1", drops)
	}
}

func TestBarQueue_DrainDeliversInOrder(t *testing.T) {
	q := NewBarQueue(4)
	q.Enqueue(model.Bar{CloseTime: 1})
	q.Enqueue(model.Bar{CloseTime: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan model.Bar, 4)
	go q.Drain(ctx, func(b model.Bar) { got <- b })

	for _, want := range []int64{1, 2} {
		select {
		case b := <-got:
			if b.CloseTime != want {
				t.Errorf("CloseTime=%d, want %d", b.CloseTime, want)
			}
		case <-time.After(time.Second):
			t.Fatal("drain never delivered")
		}
	}
}
