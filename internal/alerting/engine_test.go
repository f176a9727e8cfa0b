package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"trading-alerts/internal/indicator"
	"trading-alerts/internal/logger"
	"trading-alerts/internal/model"
)

func addAlert(t *testing.T, fx *fixture, a model.Alert) model.Alert {
	t.Helper()
	if a.ID == "" {
		a.ID = a.Symbol + "-" + a.Indicator
	}
	if a.Timeframe == "" {
		a.Timeframe = "1day"
	}
	if a.IndicatorParams == nil {
		a.IndicatorParams = map[string]float64{}
	}
	a.Active = true
	a.Channels = model.NotificationChannels{App: true}
	a.CreatedAt = t0
	if err := fx.store.Create(context.Background(), a); err != nil {
		t.Fatalf("create alert: %v", err)
	}
	return a
}

func TestCheck_RSIBelowThresholdTriggers(t *testing.T) {
	fx := newFixture()
	fx.market.set("AAPL", rsi25()...)
	a := addAlert(t, fx, model.Alert{
		Symbol: "AAPL", Indicator: "RSI",
		IndicatorParams: map[string]float64{"period": 14},
		Condition:       model.LessThan, Threshold: 30,
	})

	res := fx.engine.Check(context.Background(), a.ID)
	if res.Status != model.CheckOK || !res.Triggered {
		t.Fatalf("result = %+v, want ok and triggered", res)
	}
	if res.Value == nil || *res.Value < 24.999 || *res.Value > 25.001 {
		t.Fatalf("value = %v, want 25", res.Value)
	}

	got, _ := fx.store.Get(a.ID)
	if !got.Triggered || got.LastTrigger == nil || !got.LastTrigger.Equal(t0) {
		t.Errorf("trigger state not recorded: %+v", got)
	}
	if !got.AppNotified {
		t.Error("app_notified should be set for app channel")
	}
	if got.LastCheck == nil || got.LastValue == nil {
		t.Error("last_check and last_value should be set")
	}

	persisted := fx.persist.rows[a.ID]
	if !persisted.Triggered {
		t.Error("trigger state must be persisted")
	}

	if fx.notifier.count() != 1 {
		t.Fatalf("dispatches = %d, want 1", fx.notifier.count())
	}
	ev := fx.notifier.events[0]
	if ev.Indicator != "RSI" || ev.Threshold != 30 || ev.Timeframe != "1day" || ev.Condition != model.LessThan {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestCheck_CrossesAboveNeverFiresOnFirstEvaluation(t *testing.T) {
	fx := newFixture()
	a := addAlert(t, fx, model.Alert{
		Symbol: "AAPL", Indicator: "PRICE",
		Condition: model.CrossesAbove, Threshold: 70,
	})

	// Already above the threshold on first sight: no previous value, no cross.
	fx.market.set("AAPL", 80)
	if res := fx.engine.Check(context.Background(), a.ID); res.Triggered {
		t.Fatal("crossing fired without a previous value")
	}

	fx.market.set("AAPL", 65)
	if res := fx.engine.Check(context.Background(), a.ID); res.Triggered {
		t.Fatal("80 -> 65 is not a cross above 70")
	}

	fx.market.set("AAPL", 75)
	res := fx.engine.Check(context.Background(), a.ID)
	if !res.Triggered {
		t.Fatalf("65 -> 75 should cross above 70: %+v", res)
	}
	got, _ := fx.store.Get(a.ID)
	if got.LastValue == nil || *got.LastValue != 75 {
		t.Errorf("last_value = %v, want 75", got.LastValue)
	}
	if fx.notifier.count() != 1 {
		t.Errorf("dispatches = %d, want 1", fx.notifier.count())
	}
}

func TestCheck_CrossBelowLandingOnThreshold(t *testing.T) {
	fx := newFixture()
	a := addAlert(t, fx, model.Alert{
		Symbol: "MSFT", Indicator: "PRICE",
		Condition: model.CrossesBelow, Threshold: 100,
	})
	fx.market.set("MSFT", 101)
	fx.engine.Check(context.Background(), a.ID)
	fx.market.set("MSFT", 100)
	if res := fx.engine.Check(context.Background(), a.ID); !res.Triggered {
		t.Fatal("101 -> 100 should cross below 100")
	}
}

func TestCheck_FetchFailureLeavesStateUnchanged(t *testing.T) {
	fx := newFixture()
	a := addAlert(t, fx, model.Alert{
		Symbol: "AAPL", Indicator: "PRICE",
		Condition: model.CrossesAbove, Threshold: 70,
	})
	fx.market.set("AAPL", 65)
	fx.engine.Check(context.Background(), a.ID)
	before, _ := fx.store.Get(a.ID)

	fx.market.err = errors.New("upstream 503")
	res := fx.engine.Check(context.Background(), a.ID)
	if res.Status != model.CheckError || res.Error == "" {
		t.Fatalf("result = %+v, want error", res)
	}

	after, _ := fx.store.Get(a.ID)
	if *after.LastValue != *before.LastValue || !after.LastCheck.Equal(*before.LastCheck) {
		t.Errorf("state changed on fetch failure: before %+v after %+v", before, after)
	}
}

func TestCheck_NaNClearsLastValue(t *testing.T) {
	fx := newFixture()
	a := addAlert(t, fx, model.Alert{
		Symbol: "AAPL", Indicator: "RSI",
		Condition: model.CrossesAbove, Threshold: 20,
	})
	fx.market.set("AAPL", rsi25()...)
	fx.engine.Check(context.Background(), a.ID)

	// Too little history: RSI is unavailable.
	fx.market.set("AAPL", 100, 101, 102)
	res := fx.engine.Check(context.Background(), a.ID)
	if res.Status != model.CheckOK || res.Triggered || res.Value != nil {
		t.Fatalf("result = %+v, want ok with no value", res)
	}
	got, _ := fx.store.Get(a.ID)
	if got.LastValue != nil {
		t.Errorf("last_value = %v, want nil", *got.LastValue)
	}
	if got.LastCheck == nil {
		t.Error("last_check should still advance")
	}
}

func TestCheck_InactiveAndMissing(t *testing.T) {
	fx := newFixture()
	a := addAlert(t, fx, model.Alert{Symbol: "AAPL", Indicator: "PRICE", Condition: model.GreaterThan, Threshold: 1})
	if _, err := fx.manager.DeactivateAlert(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}

	if res := fx.engine.Check(context.Background(), a.ID); res.Status != model.CheckInactive {
		t.Errorf("status = %s, want inactive", res.Status)
	}
	if fx.market.calls != 0 {
		t.Error("inactive alert must not fetch data")
	}

	res := fx.engine.Check(context.Background(), "nope")
	if res.Status != model.CheckError || !errors.Is(res.Err, model.ErrNotFound) {
		t.Errorf("result = %+v, want not found error", res)
	}
}

func TestCheck_PersistFailureSkipsDispatch(t *testing.T) {
	fx := newFixture()
	fx.market.set("AAPL", rsi25()...)
	a := addAlert(t, fx, model.Alert{Symbol: "AAPL", Indicator: "RSI", Condition: model.LessThan, Threshold: 30})

	fx.persist.setFail(errors.New("disk full"))
	res := fx.engine.Check(context.Background(), a.ID)
	if res.Status != model.CheckError {
		t.Fatalf("status = %s, want error", res.Status)
	}
	if fx.notifier.count() != 0 {
		t.Error("trigger must not be dispatched when its state was not persisted")
	}
	got, _ := fx.store.Get(a.ID)
	if got.Triggered || got.LastCheck != nil {
		t.Errorf("memory diverged from storage: %+v", got)
	}
}

func TestCheck_DefinitionChangedDuringFetchIsSkipped(t *testing.T) {
	fx := newFixture()
	fx.market.set("AAPL", rsi25()...)
	a := addAlert(t, fx, model.Alert{Symbol: "AAPL", Indicator: "RSI", Condition: model.LessThan, Threshold: 30})

	fx.market.before = func() {
		fx.market.before = nil
		if _, err := fx.manager.UpdateAlert(context.Background(), a.ID, map[string]any{"threshold": 10.0}); err != nil {
			t.Errorf("update: %v", err)
		}
	}
	res := fx.engine.Check(context.Background(), a.ID)
	if res.Status != model.CheckSkipped {
		t.Fatalf("status = %s, want skipped", res.Status)
	}
	got, _ := fx.store.Get(a.ID)
	if got.Threshold != 10 || got.Triggered {
		t.Errorf("concurrent edit lost or stale trigger applied: %+v", got)
	}
	if fx.notifier.count() != 0 {
		t.Error("skipped check must not dispatch")
	}
}

func TestCheck_DeactivatedDuringFetch(t *testing.T) {
	fx := newFixture()
	fx.market.set("AAPL", rsi25()...)
	a := addAlert(t, fx, model.Alert{Symbol: "AAPL", Indicator: "RSI", Condition: model.LessThan, Threshold: 30})

	fx.market.before = func() {
		fx.market.before = nil
		fx.manager.DeactivateAlert(context.Background(), a.ID)
	}
	if res := fx.engine.Check(context.Background(), a.ID); res.Status != model.CheckInactive {
		t.Fatalf("status = %s, want inactive", res.Status)
	}
	if fx.notifier.count() != 0 {
		t.Error("deactivated alert must not dispatch")
	}
}

func TestCheckAll_IsolatesFailures(t *testing.T) {
	fx := newFixture()
	fx.market.set("AAPL", rsi25()...)
	fx.market.set("MSFT", 50)

	addAlert(t, fx, model.Alert{ID: "a1", Symbol: "AAPL", Indicator: "RSI", Condition: model.LessThan, Threshold: 30})
	addAlert(t, fx, model.Alert{ID: "a2", Symbol: "AAPL", Indicator: "VWAP", Condition: model.LessThan, Threshold: 30})
	addAlert(t, fx, model.Alert{ID: "a3", Symbol: "MSFT", Indicator: "PRICE", Condition: model.GreaterThan, Threshold: 10})

	results := fx.engine.CheckAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	var ok, failed int
	for _, r := range results {
		switch r.Status {
		case model.CheckOK:
			ok++
		case model.CheckError:
			failed++
			if r.AlertID != "a2" {
				t.Errorf("unexpected failure for %s: %s", r.AlertID, r.Error)
			}
		}
	}
	if ok != 2 || failed != 1 {
		t.Errorf("ok=%d failed=%d, want 2 and 1", ok, failed)
	}
	if fx.notifier.count() != 2 {
		t.Errorf("dispatches = %d, want 2", fx.notifier.count())
	}
}

func TestCheckAll_StopsOnCancel(t *testing.T) {
	fx := newFixture()
	fx.market.set("AAPL", 1)
	addAlert(t, fx, model.Alert{ID: "a1", Symbol: "AAPL", Indicator: "PRICE", Condition: model.GreaterThan, Threshold: 10})
	addAlert(t, fx, model.Alert{ID: "a2", Symbol: "AAPL", Indicator: "PRICE", Condition: model.GreaterThan, Threshold: 10})

	ctx, cancel := context.WithCancel(context.Background())
	fx.market.before = func() { cancel() }
	results := fx.engine.CheckAll(ctx)
	if len(results) != 1 {
		t.Errorf("results = %d, want sweep to stop after the first alert", len(results))
	}
}

func TestCheck_DeepOutputOnWeekdayFeed(t *testing.T) {
	fx := newFixture()
	market := &weekdayMarket{}
	engine := NewEngine(EngineConfig{
		Store:      fx.store,
		Indicators: indicator.Builtin(),
		Market:     market,
		Notifier:   fx.notifier,
		Now:        func() time.Time { return t0 },
	}, logger.Discard())

	a := addAlert(t, fx, model.Alert{
		Symbol: "AAPL", Indicator: "ICHIMOKU",
		IndicatorOutput: "senkou_span_b",
		Condition:       model.GreaterThan, Threshold: 0,
	})

	res := engine.Check(context.Background(), a.ID)
	if res.Status != model.CheckOK {
		t.Fatalf("status = %s (%s), want ok", res.Status, res.Error)
	}
	if res.Value == nil || !res.Triggered {
		t.Fatalf("senkou_span_b unavailable with %d weekday bars: %+v", market.fetched, res)
	}
	if market.fetched < 26+52 {
		t.Errorf("fetched %d bars, want at least kijun+span_b = 78", market.fetched)
	}
}
