package alerting

import (
	"context"
	"sync"
	"time"

	"trading-alerts/internal/alerts"
	"trading-alerts/internal/indicator"
	"trading-alerts/internal/logger"
	"trading-alerts/internal/model"
	"trading-alerts/internal/notification"
	"trading-alerts/internal/settings"
)

var t0 = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

type memAlerts struct {
	mu      sync.Mutex
	rows    map[string]model.Alert
	failErr error
}

func newMemAlerts() *memAlerts { return &memAlerts{rows: map[string]model.Alert{}} }

func (m *memAlerts) SaveAlert(_ context.Context, a model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.rows[a.ID] = a.Clone()
	return nil
}

func (m *memAlerts) DeleteAlert(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memAlerts) LoadAlerts(context.Context) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Alert, 0, len(m.rows))
	for _, a := range m.rows {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (m *memAlerts) setFail(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

type memSettings struct {
	s     model.Settings
	found bool
}

func (m *memSettings) LoadSettings(context.Context) (model.Settings, bool, error) {
	return m.s, m.found, nil
}

func (m *memSettings) SaveSettings(_ context.Context, s model.Settings) error {
	m.s, m.found = s, true
	return nil
}

// fakeMarket serves fixed closes per symbol. before runs inside GetBars.
type fakeMarket struct {
	mu     sync.Mutex
	closes map[string][]float64
	err    error
	calls  int
	before func()
}

func (f *fakeMarket) set(symbol string, closes ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closes == nil {
		f.closes = map[string][]float64{}
	}
	f.closes[symbol] = closes
}

func (f *fakeMarket) GetBars(_ context.Context, symbol, _ string, _, end time.Time) ([]model.Bar, error) {
	f.mu.Lock()
	f.calls++
	hook, err, closes := f.before, f.err, f.closes[symbol]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			TS:   end.Add(-time.Duration(len(closes)-i) * 24 * time.Hour),
			Open: c, High: c, Low: c, Close: c, Volume: 1000,
		}
	}
	return bars, nil
}

func (f *fakeMarket) LatestPrice(context.Context, string) (float64, error) { return 0, nil }

type fakeNotifier struct {
	mu     sync.Mutex
	events []model.TriggerEvent
	alerts []model.Alert
}

func (n *fakeNotifier) Dispatch(_ context.Context, a model.Alert, ev model.TriggerEvent) []notification.Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	persist  *memAlerts
	store    *alerts.Store
	market   *fakeMarket
	notifier *fakeNotifier
	engine   *Engine
	manager  *Manager
}

func newFixture() *fixture {
	fx := &fixture{
		persist:  newMemAlerts(),
		market:   &fakeMarket{},
		notifier: &fakeNotifier{},
	}
	fx.store = alerts.New(fx.persist)
	now := func() time.Time { return t0 }
	fx.engine = NewEngine(EngineConfig{
		Store:      fx.store,
		Indicators: indicator.Builtin(),
		Market:     fx.market,
		Notifier:   fx.notifier,
		Now:        now,
	}, logger.Discard())

	st := settings.New(&memSettings{}, model.DefaultSettings())
	st.Load(context.Background())
	fx.manager = NewManager(ManagerConfig{
		Alerts:     fx.store,
		Indicators: indicator.Builtin(),
		Settings:   st,
		Engine:     fx.engine,
		Now:        now,
	}, logger.Discard())
	return fx
}

func threshold(v float64) *float64 { return &v }

// rsi25 is a 15-close series whose RSI(14) is exactly 25.
func rsi25() []float64 {
	closes := []float64{100}
	for i := 0; i < 7; i++ {
		closes = append(closes, closes[len(closes)-1]+1)
		closes = append(closes, closes[len(closes)-1]-3)
	}
	return closes
}

// weekdayMarket serves one daily bar per weekday in [start, end] with
// closes rising by one per bar, like a stock feed with no weekend bars.
type weekdayMarket struct {
	mu      sync.Mutex
	fetched int
}

func (w *weekdayMarket) GetBars(_ context.Context, _, _ string, start, end time.Time) ([]model.Bar, error) {
	var bars []model.Bar
	day := start.UTC().Truncate(24 * time.Hour)
	for ; !day.After(end); day = day.Add(24 * time.Hour) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		c := 100 + float64(len(bars))
		bars = append(bars, model.Bar{TS: day, Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000})
	}
	w.mu.Lock()
	w.fetched = len(bars)
	w.mu.Unlock()
	return bars, nil
}

func (w *weekdayMarket) LatestPrice(context.Context, string) (float64, error) { return 0, nil }
