package sqlite

import (
	"context"
	"io"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"trading-alerts/internal/model"
)

func openTemp(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "alerts.db")
	db, err := Open(path, quietLog())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func sampleAlert() model.Alert {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	checked := created.Add(5 * time.Minute)
	value := 27.5
	return model.Alert{
		ID:              "a-1",
		Symbol:          "AAPL",
		Indicator:       "RSI",
		IndicatorParams: map[string]float64{"period": 14},
		Condition:       model.LessThan,
		Threshold:       30,
		Timeframe:       "1day",
		Channels:        model.NotificationChannels{App: true, Webhook: "https://example.test/hook"},
		Active:          true,
		CreatedAt:       created,
		UpdatedAt:       created,
		LastCheck:       &checked,
		LastValue:       &value,
		Triggered:       true,
		LastTrigger:     &checked,
		AppNotified:     true,
	}
}

func TestAlert_RoundTripAcrossReopen(t *testing.T) {
	db, path := openTemp(t)
	ctx := context.Background()
	want := sampleAlert()

	if err := db.SaveAlert(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	db.Close()

	db2, err := Open(path, quietLog())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	got, err := db2.LoadAlerts(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(got))
	}
	if !reflect.DeepEqual(got[0], want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got[0], want)
	}
}

func TestAlert_ReplaceAndDelete(t *testing.T) {
	db, _ := openTemp(t)
	ctx := context.Background()
	a := sampleAlert()

	db.SaveAlert(ctx, a)
	a.Threshold = 20
	if err := db.SaveAlert(ctx, a); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ := db.LoadAlerts(ctx)
	if len(got) != 1 || got[0].Threshold != 20 {
		t.Fatalf("expected single replaced alert, got %+v", got)
	}

	if err := db.DeleteAlert(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := db.DeleteAlert(ctx, a.ID); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	got, _ = db.LoadAlerts(ctx)
	if len(got) != 0 {
		t.Fatalf("expected no alerts, got %d", len(got))
	}
}

func TestSymbols_BatchUpsert(t *testing.T) {
	db, _ := openTemp(t)
	ctx := context.Background()
	added := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	batch := []model.Symbol{
		{Symbol: "AAPL", Name: "Apple Inc.", AssetClass: model.AssetStock, Exchange: "NASDAQ", Tradable: true, Available: true, AddedAt: added},
		{Symbol: "BTC/USD", Name: "Bitcoin", AssetClass: model.AssetCrypto, Exchange: "Various", Tradable: true, Available: true, AddedAt: added},
	}
	if err := db.SaveSymbols(ctx, batch); err != nil {
		t.Fatalf("save: %v", err)
	}

	batch[0].Available = false
	if err := db.SaveSymbol(ctx, batch[0]); err != nil {
		t.Fatalf("save one: %v", err)
	}

	got, err := db.LoadSymbols(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(got))
	}
	if got[0].Symbol != "AAPL" || got[0].Available {
		t.Errorf("expected AAPL disabled, got %+v", got[0])
	}

	db.DeleteSymbol(ctx, "AAPL")
	got, _ = db.LoadSymbols(ctx)
	if len(got) != 1 || got[0].Symbol != "BTC/USD" {
		t.Errorf("unexpected symbols after delete: %+v", got)
	}
}

func TestSettings_MissingThenSaved(t *testing.T) {
	db, _ := openTemp(t)
	ctx := context.Background()

	_, found, err := db.LoadSettings(ctx)
	if err != nil || found {
		t.Fatalf("expected no settings, got found=%v err=%v", found, err)
	}

	want := model.DefaultSettings()
	want.CheckInterval = 15
	want.NotificationSettings.Webhook = model.WebhookSettings{Enabled: true, DefaultURL: "https://hooks.test"}
	if err := db.SaveSettings(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, found, err := db.LoadSettings(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("settings mismatch: got %+v want %+v", got, want)
	}
}
