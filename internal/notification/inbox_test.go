package notification

import (
	"testing"
	"time"

	"trading-alerts/internal/model"
)

func event(id string) model.TriggerEvent {
	return model.TriggerEvent{
		AlertID: id, Symbol: "AAPL", Indicator: "RSI", Condition: model.LessThan,
		Threshold: 30, CurrentValue: 25, Timeframe: "1day", TriggeredAt: time.Now().UTC(),
	}
}

func TestInbox_Since(t *testing.T) {
	ib := NewInbox(100)
	for i := 0; i < 10; i++ {
		ib.Push(event("a"))
	}

	got := ib.Since(3)
	if len(got) != 7 {
		t.Fatalf("Since(3): expected 7, got %d", len(got))
	}
	for i, n := range got {
		if want := int64(i) + 4; n.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, n.Seq, want)
		}
	}
}

func TestInbox_Wraparound(t *testing.T) {
	ib := NewInbox(5)
	for i := 0; i < 8; i++ {
		ib.Push(event("a"))
	}

	if ib.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", ib.Len())
	}
	got := ib.Since(0)
	if len(got) != 5 {
		t.Fatalf("Since(0): expected 5, got %d", len(got))
	}
	if got[0].Seq != 4 || got[4].Seq != 8 {
		t.Errorf("seqs = %d..%d, want 4..8", got[0].Seq, got[4].Seq)
	}

	recent := ib.Recent(2)
	if len(recent) != 2 || recent[0].Seq != 7 || recent[1].Seq != 8 {
		t.Errorf("Recent(2) = %+v", recent)
	}
}

func TestInbox_Empty(t *testing.T) {
	ib := NewInbox(10)
	if got := ib.Since(0); len(got) != 0 {
		t.Fatalf("empty inbox returned %d entries", len(got))
	}
	if got := ib.Recent(5); len(got) != 0 {
		t.Fatalf("empty inbox returned %d entries", len(got))
	}
}

func TestInbox_OnPush(t *testing.T) {
	ib := NewInbox(10)
	var seen []int64
	ib.OnPush = func(n Notification) { seen = append(seen, n.Seq) }
	ib.Push(event("a"))
	ib.Push(event("b"))
	if len(seen) != 2 || seen[1] != 2 {
		t.Errorf("hook saw %v", seen)
	}
}

func TestFormat(t *testing.T) {
	ev := event("a")
	if got := Title(ev); got != "Alert: AAPL - RSI" {
		t.Errorf("Title = %q", got)
	}
	if got := FormatValue(25.123456); got != "25.1235" {
		t.Errorf("FormatValue = %q", got)
	}
	if got := FormatValue(70); got != "70" {
		t.Errorf("FormatValue = %q", got)
	}
	ev.Output = "histogram"
	ev.Indicator = "MACD"
	if got := Message(ev); got != "AAPL MACD.histogram below 30 (current 25, 1day)" {
		t.Errorf("Message = %q", got)
	}
}
