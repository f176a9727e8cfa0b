package alerting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"trading-alerts/internal/alerts"
	"trading-alerts/internal/indicator"
	"trading-alerts/internal/logger"
	"trading-alerts/internal/marketdata"
	"trading-alerts/internal/model"
	"trading-alerts/internal/notification"
)

// minExtraBars is the history fetched beyond an indicator's warmup so
// smoothed indicators settle before the value is read.
const minExtraBars = 50

var errDeactivated = errors.New("alert deactivated during check")

// Notifier delivers a trigger to the alert's channels.
type Notifier interface {
	Dispatch(ctx context.Context, a model.Alert, ev model.TriggerEvent) []notification.Delivery
}

// Recorder receives engine and scheduler metrics.
type Recorder interface {
	ObserveCheck(r model.CheckResult, indicator string, d time.Duration)
	ObserveSweep(active int, d time.Duration)
	SweepPanicked()
	SetSchedulerRunning(v bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCheck(model.CheckResult, string, time.Duration) {}
func (nopRecorder) ObserveSweep(int, time.Duration)                       {}
func (nopRecorder) SweepPanicked()                                        {}
func (nopRecorder) SetSchedulerRunning(bool)                              {}

// EngineConfig lists the engine's collaborators.
type EngineConfig struct {
	Store      *alerts.Store
	Indicators *indicator.Registry
	Market     model.MarketData
	Notifier   Notifier // optional
	Recorder   Recorder // optional
	Now        func() time.Time
}

// Engine evaluates alerts.
type Engine struct {
	store    *alerts.Store
	registry *indicator.Registry
	market   model.MarketData
	notifier Notifier
	rec      Recorder
	now      func() time.Time
	log      *logrus.Entry
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig, log *logrus.Entry) *Engine {
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:    cfg.Store,
		registry: cfg.Indicators,
		market:   cfg.Market,
		notifier: cfg.Notifier,
		rec:      cfg.Recorder,
		now:      cfg.Now,
		log:      log.WithField("component", "engine"),
	}
}

// plan is a resolved alert definition ready to be computed.
type plan struct {
	spec   indicator.Spec
	params indicator.Params
	output string
	tf     marketdata.Timeframe
}

// resolve validates the definition of a. Every error is a configuration
// error.
func (e *Engine) resolve(a model.Alert) (plan, error) {
	spec, err := e.registry.Lookup(a.Indicator)
	if err != nil {
		return plan{}, err
	}
	params, err := spec.Resolve(a.IndicatorParams)
	if err != nil {
		return plan{}, err
	}
	output := a.IndicatorOutput
	if output == "" {
		output = spec.Primary()
	}
	if !spec.HasOutput(output) {
		return plan{}, fmt.Errorf("%w: %s has no output %q", indicator.ErrUnknownOutput, spec.Name, output)
	}
	tf, err := marketdata.ParseTimeframe(a.Timeframe)
	if err != nil {
		return plan{}, err
	}
	return plan{spec: spec, params: params, output: output, tf: tf}, nil
}

// Check evaluates one alert and updates its state.
func (e *Engine) Check(ctx context.Context, id string) model.CheckResult {
	start := time.Now()
	res, indicatorName := e.check(ctx, id)
	e.rec.ObserveCheck(res, indicatorName, time.Since(start))

	log := e.log.WithFields(logger.Fields(ctx)).WithFields(logrus.Fields{"alert_id": id, "status": res.Status})
	switch {
	case res.Err != nil:
		log.WithError(res.Err).Warn("check failed")
	case res.Triggered:
		log.Info("alert triggered")
	default:
		log.Debug("alert checked")
	}
	return res
}

func (e *Engine) check(ctx context.Context, id string) (model.CheckResult, string) {
	res := model.CheckResult{AlertID: id, Timestamp: e.now()}

	a, ok := e.store.Get(id)
	if !ok {
		return fail(res, fmt.Errorf("alert %s: %w", id, model.ErrNotFound)), ""
	}
	if !a.Active {
		res.Status = model.CheckInactive
		return res, a.Indicator
	}

	p, err := e.resolve(a)
	if err != nil {
		return fail(res, err), a.Indicator
	}

	need := p.spec.Warmup(p.params)
	need += max(need, minExtraBars)
	end := e.now()
	bars, err := e.market.GetBars(ctx, a.Symbol, p.tf.Name, end.Add(-p.tf.Lookback(need)), end)
	if err != nil {
		return fail(res, fmt.Errorf("market data %s: %w", a.Symbol, err)), p.spec.Name
	}

	value, err := p.spec.Select(p.spec.Compute(bars, p.params), p.output)
	if err != nil {
		return fail(res, err), p.spec.Name
	}

	now := e.now()
	res.Timestamp = now
	def := a.DefinitionKey()

	var triggered bool
	updated, err := e.store.Mutate(ctx, id, func(cur *model.Alert) error {
		if !cur.Active {
			return errDeactivated
		}
		if cur.DefinitionKey() != def || cur.Condition != a.Condition || cur.Threshold != a.Threshold {
			return alerts.ErrSkip
		}

		checked := now
		cur.LastCheck = &checked
		if math.IsNaN(value) {
			cur.LastValue = nil
			return nil
		}

		triggered = Evaluate(cur.Condition, cur.LastValue, value, cur.Threshold)
		v := value
		cur.LastValue = &v
		if triggered {
			fired := now
			cur.Triggered = true
			cur.LastTrigger = &fired
			if cur.Channels.App {
				cur.AppNotified = true
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, errDeactivated):
		res.Status = model.CheckInactive
		return res, p.spec.Name
	case errors.Is(err, alerts.ErrSkip):
		res.Status = model.CheckSkipped
		return res, p.spec.Name
	case err != nil:
		return fail(res, fmt.Errorf("persist alert %s: %w", id, err)), p.spec.Name
	}

	res.Status = model.CheckOK
	res.Triggered = triggered
	if !math.IsNaN(value) {
		v := value
		res.Value = &v
	}

	if triggered && e.notifier != nil {
		e.notifier.Dispatch(ctx, updated, model.TriggerEvent{
			AlertID:      updated.ID,
			Symbol:       updated.Symbol,
			Indicator:    p.spec.Name,
			Output:       updated.IndicatorOutput,
			Condition:    updated.Condition,
			Threshold:    updated.Threshold,
			CurrentValue: value,
			Timeframe:    p.tf.Name,
			TriggeredAt:  now,
		})
	}
	return res, p.spec.Name
}

func fail(res model.CheckResult, err error) model.CheckResult {
	res.Status = model.CheckError
	res.Err = err
	res.Error = err.Error()
	return res
}

// CheckAll checks every active alert in creation order and returns one
// result per alert. A failing alert never stops the sweep; cancellation
// does.
func (e *Engine) CheckAll(ctx context.Context) []model.CheckResult {
	start := time.Now()
	if logger.TraceID(ctx) == "" {
		ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("sweep", start))
	}

	active := e.store.Active()
	results := make([]model.CheckResult, 0, len(active))
	for _, a := range active {
		if ctx.Err() != nil {
			e.log.WithFields(logger.Fields(ctx)).Info("sweep cancelled")
			break
		}
		results = append(results, e.Check(ctx, a.ID))
	}

	e.rec.ObserveSweep(len(active), time.Since(start))
	e.log.WithFields(logger.Fields(ctx)).WithFields(logrus.Fields{
		"alerts":   len(active),
		"duration": time.Since(start).String(),
	}).Debug("sweep complete")
	return results
}
