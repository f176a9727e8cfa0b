package alerting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"trading-alerts/internal/alerts"
	"trading-alerts/internal/indicator"
	"trading-alerts/internal/marketdata"
	"trading-alerts/internal/model"
	"trading-alerts/internal/settings"
	"trading-alerts/internal/symbols"
)

// DefaultTimeframe is used when an alert is created without one.
const DefaultTimeframe = "1day"

// ErrUnknownSymbol is returned for alerts on symbols missing from the registry.
var ErrUnknownSymbol = fmt.Errorf("%w: unknown symbol", model.ErrInvalid)

// editableAlertFields lists the keys UpdateAlert accepts.
var editableAlertFields = []string{
	"symbol", "indicator", "indicator_params", "indicator_output", "condition",
	"threshold", "timeframe", "notification_channels", "active",
}

// NewAlert is the input of CreateAlert. Nil optional fields get defaults:
// timeframe 1day, app notifications only, active.
type NewAlert struct {
	Symbol          string                      `json:"symbol"`
	Indicator       string                      `json:"indicator"`
	IndicatorParams map[string]float64          `json:"indicator_params"`
	IndicatorOutput string                      `json:"indicator_output"`
	Condition       model.Condition             `json:"condition"`
	Threshold       *float64                    `json:"threshold"`
	Timeframe       string                      `json:"timeframe"`
	Channels        *model.NotificationChannels `json:"notification_channels"`
	Active          *bool                       `json:"active"`
}

// ManagerConfig lists the manager's collaborators.
type ManagerConfig struct {
	Alerts     *alerts.Store
	Symbols    *symbols.Registry // optional; when set, alert symbols must be registered
	Indicators *indicator.Registry
	Settings   *settings.Store
	Engine     *Engine
	Recorder   Recorder
	Now        func() time.Time
}

// Manager is the control surface of the alert engine.
type Manager struct {
	alerts     *alerts.Store
	symbols    *symbols.Registry
	indicators *indicator.Registry
	settings   *settings.Store
	engine     *Engine
	sched      *Scheduler
	now        func() time.Time
	log        *logrus.Entry
}

// NewManager creates a manager and its scheduler.
func NewManager(cfg ManagerConfig, log *logrus.Entry) *Manager {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	m := &Manager{
		alerts:     cfg.Alerts,
		symbols:    cfg.Symbols,
		indicators: cfg.Indicators,
		settings:   cfg.Settings,
		engine:     cfg.Engine,
		now:        cfg.Now,
		log:        log.WithField("component", "manager"),
	}
	m.sched = NewScheduler(
		func(ctx context.Context) { m.engine.CheckAll(ctx) },
		m.interval,
		cfg.Recorder,
		log,
	)
	return m
}

// Scheduler exposes the scheduler, for tuning its timeouts.
func (m *Manager) Scheduler() *Scheduler { return m.sched }

func (m *Manager) interval() time.Duration {
	return time.Duration(m.settings.Get().CheckInterval) * time.Second
}

// validate checks the definition and normalizes names in place. The symbol
// registry is consulted only when checkSymbol is set, so alerts outlive the
// removal of their symbol.
func (m *Manager) validate(a *model.Alert, checkSymbol bool) error {
	a.Symbol = symbols.Normalize(a.Symbol)
	if a.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", model.ErrInvalid)
	}
	if checkSymbol && m.symbols != nil && !m.symbols.Exists(a.Symbol) {
		return fmt.Errorf("%w %s", ErrUnknownSymbol, a.Symbol)
	}

	spec, err := m.indicators.Lookup(a.Indicator)
	if err != nil {
		return err
	}
	a.Indicator = spec.Name
	if a.IndicatorParams == nil {
		a.IndicatorParams = map[string]float64{}
	}
	if _, err := spec.Resolve(a.IndicatorParams); err != nil {
		return err
	}
	if a.IndicatorOutput != "" && !spec.HasOutput(a.IndicatorOutput) {
		return fmt.Errorf("%w: %s has no output %q", indicator.ErrUnknownOutput, spec.Name, a.IndicatorOutput)
	}

	if !a.Condition.Valid() {
		return fmt.Errorf("%w: unknown condition %q", model.ErrInvalid, a.Condition)
	}
	if math.IsNaN(a.Threshold) || math.IsInf(a.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite", model.ErrInvalid)
	}

	tf, err := marketdata.ParseTimeframe(a.Timeframe)
	if err != nil {
		return err
	}
	a.Timeframe = tf.Name
	return nil
}

// CreateAlert validates and stores a new alert.
func (m *Manager) CreateAlert(ctx context.Context, in NewAlert) (model.Alert, error) {
	if in.Threshold == nil {
		return model.Alert{}, fmt.Errorf("%w: threshold is required", model.ErrInvalid)
	}
	now := m.now()
	a := model.Alert{
		ID:              uuid.NewString(),
		Symbol:          in.Symbol,
		Indicator:       in.Indicator,
		IndicatorParams: in.IndicatorParams,
		IndicatorOutput: in.IndicatorOutput,
		Condition:       in.Condition,
		Threshold:       *in.Threshold,
		Timeframe:       in.Timeframe,
		Channels:        model.NotificationChannels{App: true},
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if a.Timeframe == "" {
		a.Timeframe = DefaultTimeframe
	}
	if in.Channels != nil {
		a.Channels = *in.Channels
	}
	if in.Active != nil {
		a.Active = *in.Active
	}
	if err := m.validate(&a, true); err != nil {
		return model.Alert{}, err
	}

	if err := m.alerts.Create(ctx, a); err != nil {
		return model.Alert{}, err
	}
	m.log.WithFields(logrus.Fields{"alert_id": a.ID, "alert": a.Describe()}).Info("alert created")
	return a, nil
}

// UpdateAlert applies the editable fields and validates the result. Unknown
// and runtime keys are ignored. Changing what the alert measures clears
// last_value so a crossing is never computed across two different series.
func (m *Manager) UpdateAlert(ctx context.Context, id string, fields map[string]any) (model.Alert, error) {
	return m.alerts.Mutate(ctx, id, func(a *model.Alert) error {
		before := a.DefinitionKey()
		next, err := model.ApplyPatch(*a, fields, model.PatchRules{
			Allowed: editableAlertFields,
			Replace: []string{"indicator_params", "notification_channels"},
		})
		if err != nil {
			return err
		}
		symbolChanged := symbols.Normalize(next.Symbol) != a.Symbol
		if err := m.validate(&next, symbolChanged); err != nil {
			return err
		}
		if next.DefinitionKey() != before {
			next.LastValue = nil
		}
		next.UpdatedAt = m.now()
		*a = next
		return nil
	})
}

// DeleteAlert removes an alert. It reports false when the id is unknown.
func (m *Manager) DeleteAlert(ctx context.Context, id string) (bool, error) {
	ok, err := m.alerts.Delete(ctx, id)
	if ok {
		m.log.WithField("alert_id", id).Info("alert deleted")
	}
	return ok, err
}

// ActivateAlert enables an alert. It reports false when the id is unknown.
func (m *Manager) ActivateAlert(ctx context.Context, id string) (bool, error) {
	return m.setActive(ctx, id, true)
}

// DeactivateAlert disables an alert. Deactivating twice succeeds.
func (m *Manager) DeactivateAlert(ctx context.Context, id string) (bool, error) {
	return m.setActive(ctx, id, false)
}

func (m *Manager) setActive(ctx context.Context, id string, v bool) (bool, error) {
	_, err := m.alerts.Mutate(ctx, id, func(a *model.Alert) error {
		if a.Active == v {
			return alerts.ErrSkip
		}
		a.Active = v
		a.UpdatedAt = m.now()
		return nil
	})
	switch {
	case errors.Is(err, model.ErrNotFound):
		return false, nil
	case errors.Is(err, alerts.ErrSkip):
		return true, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// GetAlert returns one alert.
func (m *Manager) GetAlert(id string) (model.Alert, bool) {
	return m.alerts.Get(id)
}

// GetAllAlerts returns every alert in creation order.
func (m *Manager) GetAllAlerts() []model.Alert {
	return m.alerts.List()
}

// CheckAlert evaluates one alert now.
func (m *Manager) CheckAlert(ctx context.Context, id string) model.CheckResult {
	return m.engine.Check(ctx, id)
}

// CheckAllAlerts runs one sweep now.
func (m *Manager) CheckAllAlerts(ctx context.Context) []model.CheckResult {
	return m.engine.CheckAll(ctx)
}

// StartChecking starts the scheduler. It reports false if already running.
func (m *Manager) StartChecking() bool {
	return m.sched.Start()
}

// StopChecking stops the scheduler, waiting a bounded time for the loop.
func (m *Manager) StopChecking() error {
	return m.sched.Stop()
}

// SchedulerRunning reports whether the scheduler loop is running.
func (m *Manager) SchedulerRunning() bool {
	return m.sched.Running()
}

// Settings returns the current settings.
func (m *Manager) Settings() model.Settings {
	return m.settings.Get()
}

// UpdateSettings applies and persists settings. A changed check_interval
// restarts a running scheduler so the new interval applies at once.
func (m *Manager) UpdateSettings(ctx context.Context, fields map[string]any) (model.Settings, error) {
	prev, next, err := m.settings.Update(ctx, fields)
	if err != nil {
		return prev, err
	}
	if next.CheckInterval != prev.CheckInterval {
		m.log.WithFields(logrus.Fields{"from": prev.CheckInterval, "to": next.CheckInterval}).Info("check interval changed")
		if err := m.sched.Restart(); err != nil {
			return next, err
		}
	}
	return next, nil
}
