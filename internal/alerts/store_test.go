package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trading-alerts/internal/model"
)

type memPersister struct {
	mu      sync.Mutex
	rows    map[string]model.Alert
	saves   int
	failErr error
}

func newMem() *memPersister { return &memPersister{rows: make(map[string]model.Alert)} }

func (m *memPersister) SaveAlert(_ context.Context, a model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.saves++
	m.rows[a.ID] = a.Clone()
	return nil
}

func (m *memPersister) DeleteAlert(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	delete(m.rows, id)
	return nil
}

func (m *memPersister) LoadAlerts(context.Context) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Alert, 0, len(m.rows))
	for _, a := range m.rows {
		out = append(out, a.Clone())
	}
	return out, nil
}

func alert(id string, created time.Time) model.Alert {
	return model.Alert{
		ID: id, Symbol: "AAPL", Indicator: "RSI",
		IndicatorParams: map[string]float64{"period": 14},
		Condition:       model.LessThan, Threshold: 30, Timeframe: "1day",
		Active: true, CreatedAt: created,
	}
}

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestCreate_RejectsDuplicate(t *testing.T) {
	s := New(newMem())
	ctx := context.Background()
	if err := s.Create(ctx, alert("a", base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, alert("a", base)); !errors.Is(err, model.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := New(newMem())
	s.Create(context.Background(), alert("a", base))

	a, _ := s.Get("a")
	a.IndicatorParams["period"] = 99
	a.Threshold = 1

	again, _ := s.Get("a")
	if again.IndicatorParams["period"] != 14 || again.Threshold != 30 {
		t.Errorf("store leaked internal state: %+v", again)
	}
}

func TestList_OrderedByCreation(t *testing.T) {
	s := New(newMem())
	ctx := context.Background()
	s.Create(ctx, alert("c", base.Add(2*time.Minute)))
	s.Create(ctx, alert("a", base))
	inactive := alert("b", base.Add(time.Minute))
	inactive.Active = false
	s.Create(ctx, inactive)

	list := s.List()
	if len(list) != 3 || list[0].ID != "a" || list[1].ID != "b" || list[2].ID != "c" {
		t.Fatalf("unexpected order: %v", ids(list))
	}
	active := s.Active()
	if len(active) != 2 || active[0].ID != "a" || active[1].ID != "c" {
		t.Fatalf("unexpected active set: %v", ids(active))
	}
}

func TestMutate_PersistFailureKeepsMemory(t *testing.T) {
	p := newMem()
	s := New(p)
	ctx := context.Background()
	s.Create(ctx, alert("a", base))

	p.failErr = errors.New("disk full")
	_, err := s.Mutate(ctx, "a", func(a *model.Alert) error {
		a.Threshold = 10
		return nil
	})
	if err == nil {
		t.Fatal("expected persistence error")
	}
	got, _ := s.Get("a")
	if got.Threshold != 30 {
		t.Errorf("in-memory alert changed despite failed write: %v", got.Threshold)
	}
}

func TestMutate_SkipDoesNotWrite(t *testing.T) {
	p := newMem()
	s := New(p)
	ctx := context.Background()
	s.Create(ctx, alert("a", base))
	saves := p.saves

	_, err := s.Mutate(ctx, "a", func(a *model.Alert) error {
		a.Threshold = 5
		return ErrSkip
	})
	if !errors.Is(err, ErrSkip) {
		t.Fatalf("expected ErrSkip, got %v", err)
	}
	if p.saves != saves {
		t.Error("skip must not persist")
	}
}

func TestMutate_IDIsImmutable(t *testing.T) {
	s := New(newMem())
	ctx := context.Background()
	s.Create(ctx, alert("a", base))
	updated, err := s.Mutate(ctx, "a", func(a *model.Alert) error {
		a.ID = "b"
		return nil
	})
	if err != nil || updated.ID != "a" {
		t.Fatalf("expected id a, got %q (%v)", updated.ID, err)
	}
}

func TestMutate_NotFound(t *testing.T) {
	s := New(newMem())
	_, err := s.Mutate(context.Background(), "missing", func(*model.Alert) error { return nil })
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMutate_ConcurrentNoLostUpdates(t *testing.T) {
	s := New(newMem())
	ctx := context.Background()
	s.Create(ctx, alert("a", base))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Mutate(ctx, "a", func(a *model.Alert) error {
				a.Threshold++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := s.Get("a")
	if got.Threshold != 80 {
		t.Errorf("threshold = %v, want 80", got.Threshold)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	s := New(newMem())
	ctx := context.Background()
	s.Create(ctx, alert("a", base))

	ok, err := s.Delete(ctx, "a")
	if !ok || err != nil {
		t.Fatalf("first delete: ok=%v err=%v", ok, err)
	}
	ok, err = s.Delete(ctx, "a")
	if ok || err != nil {
		t.Fatalf("second delete: ok=%v err=%v", ok, err)
	}
}

func TestLoad_RestoresPersisted(t *testing.T) {
	p := newMem()
	s := New(p)
	ctx := context.Background()
	s.Create(ctx, alert("a", base))
	s.Create(ctx, alert("b", base.Add(time.Second)))

	fresh := New(p)
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if fresh.Len() != 2 {
		t.Fatalf("expected 2 alerts, got %d", fresh.Len())
	}
}

func ids(list []model.Alert) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}
