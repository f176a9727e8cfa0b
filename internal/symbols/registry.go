// Package symbols maintains the universe of instruments alerts can target.
package symbols

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"trading-alerts/internal/model"
)

// Persister is the durable side of the registry.
type Persister interface {
	SaveSymbol(ctx context.Context, s model.Symbol) error
	SaveSymbols(ctx context.Context, symbols []model.Symbol) error
	DeleteSymbol(ctx context.Context, symbol string) error
	LoadSymbols(ctx context.Context) ([]model.Symbol, error)
}

// NewSymbol is the input of Add. Zero fields get defaults.
type NewSymbol struct {
	Symbol     string           `json:"symbol"`
	Name       string           `json:"name"`
	AssetClass model.AssetClass `json:"asset_class"`
	Exchange   string           `json:"exchange"`
	Tradable   *bool            `json:"tradable"`
	Available  *bool            `json:"available"`
}

// SyncResult summarizes a catalog synchronization.
type SyncResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// editable lists the fields Update may change.
var editable = []string{"name", "asset_class", "exchange", "tradable", "available"}

// Registry is the in-memory symbol index backed by a Persister.
type Registry struct {
	mu      sync.Mutex
	symbols map[string]model.Symbol
	p       Persister
	log     *logrus.Entry
	now     func() time.Time
}

// New creates an empty registry.
func New(p Persister, log *logrus.Entry) *Registry {
	return &Registry{
		symbols: make(map[string]model.Symbol),
		p:       p,
		log:     log.WithField("component", "symbols"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Normalize canonicalizes a symbol key.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Load replaces the index with the persisted records.
func (r *Registry) Load(ctx context.Context) error {
	list, err := r.p.LoadSymbols(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols = make(map[string]model.Symbol, len(list))
	for _, s := range list {
		r.symbols[s.Symbol] = s
	}
	return nil
}

// DefaultSymbols is the starter set written on first start.
func DefaultSymbols() []NewSymbol {
	return []NewSymbol{
		{Symbol: "AAPL", Name: "Apple Inc.", AssetClass: model.AssetStock, Exchange: "NASDAQ"},
		{Symbol: "MSFT", Name: "Microsoft Corporation", AssetClass: model.AssetStock, Exchange: "NASDAQ"},
		{Symbol: "AMZN", Name: "Amazon.com Inc.", AssetClass: model.AssetStock, Exchange: "NASDAQ"},
		{Symbol: "GOOGL", Name: "Alphabet Inc.", AssetClass: model.AssetStock, Exchange: "NASDAQ"},
		{Symbol: "BTC/USD", Name: "Bitcoin", AssetClass: model.AssetCrypto, Exchange: "Various"},
		{Symbol: "ETH/USD", Name: "Ethereum", AssetClass: model.AssetCrypto, Exchange: "Various"},
	}
}

// SeedDefaults writes DefaultSymbols when the registry is empty.
// It returns the number of symbols written.
func (r *Registry) SeedDefaults(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.symbols) > 0 {
		return 0, nil
	}
	now := r.now()
	batch := make([]model.Symbol, 0, len(DefaultSymbols()))
	for _, ns := range DefaultSymbols() {
		batch = append(batch, build(ns, now))
	}
	if err := r.p.SaveSymbols(ctx, batch); err != nil {
		return 0, err
	}
	for _, s := range batch {
		r.symbols[s.Symbol] = s
	}
	r.log.WithField("count", len(batch)).Info("seeded default symbols")
	return len(batch), nil
}

func build(ns NewSymbol, now time.Time) model.Symbol {
	s := model.Symbol{
		Symbol:     Normalize(ns.Symbol),
		Name:       strings.TrimSpace(ns.Name),
		AssetClass: ns.AssetClass,
		Exchange:   strings.TrimSpace(ns.Exchange),
		Tradable:   true,
		Available:  true,
		AddedAt:    now,
		UpdatedAt:  now,
	}
	if s.Name == "" {
		s.Name = s.Symbol
	}
	if s.AssetClass == "" {
		s.AssetClass = model.AssetStock
	}
	if s.Exchange == "" {
		s.Exchange = "Unknown"
	}
	if ns.Tradable != nil {
		s.Tradable = *ns.Tradable
	}
	if ns.Available != nil {
		s.Available = *ns.Available
	}
	return s
}

// Add registers a new symbol. Existing keys are rejected.
func (r *Registry) Add(ctx context.Context, ns NewSymbol) (model.Symbol, error) {
	key := Normalize(ns.Symbol)
	if key == "" {
		return model.Symbol{}, fmt.Errorf("%w: empty symbol", model.ErrInvalid)
	}
	s := build(ns, r.now())
	switch s.AssetClass {
	case model.AssetStock, model.AssetCrypto, model.AssetForex, model.AssetOther:
	default:
		return model.Symbol{}, fmt.Errorf("%w: asset_class %q", model.ErrInvalid, s.AssetClass)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.symbols[key]; exists {
		return model.Symbol{}, fmt.Errorf("symbol %s: %w", key, model.ErrAlreadyExists)
	}
	if err := r.p.SaveSymbol(ctx, s); err != nil {
		return model.Symbol{}, err
	}
	r.symbols[key] = s
	return s, nil
}

// Get returns the symbol.
func (r *Registry) Get(symbol string) (model.Symbol, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.symbols[Normalize(symbol)]
	return s, ok
}

// Exists reports whether the symbol is registered.
func (r *Registry) Exists(symbol string) bool {
	_, ok := r.Get(symbol)
	return ok
}

// List returns every symbol ordered by key.
func (r *Registry) List() []model.Symbol {
	return r.filter(func(model.Symbol) bool { return true })
}

// ListAvailable returns the symbols offered as alert targets.
func (r *Registry) ListAvailable() []model.Symbol {
	return r.filter(func(s model.Symbol) bool { return s.Available })
}

func (r *Registry) filter(keep func(model.Symbol) bool) []model.Symbol {
	r.mu.Lock()
	out := make([]model.Symbol, 0, len(r.symbols))
	for _, s := range r.symbols {
		if keep(s) {
			out = append(out, s)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Update applies the known editable fields and persists the symbol.
func (r *Registry) Update(ctx context.Context, symbol string, fields map[string]any) (model.Symbol, error) {
	return r.mutate(ctx, symbol, func(cur model.Symbol) (model.Symbol, error) {
		return model.ApplyPatch(cur, fields, model.PatchRules{Allowed: editable})
	})
}

// Enable makes the symbol available. It reports false if the symbol is unknown.
func (r *Registry) Enable(ctx context.Context, symbol string) (bool, error) {
	return r.setAvailable(ctx, symbol, true)
}

// Disable hides the symbol from availability listings without deleting it.
func (r *Registry) Disable(ctx context.Context, symbol string) (bool, error) {
	return r.setAvailable(ctx, symbol, false)
}

func (r *Registry) setAvailable(ctx context.Context, symbol string, v bool) (bool, error) {
	_, err := r.mutate(ctx, symbol, func(cur model.Symbol) (model.Symbol, error) {
		cur.Available = v
		return cur, nil
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Registry) mutate(ctx context.Context, symbol string, fn func(model.Symbol) (model.Symbol, error)) (model.Symbol, error) {
	key := Normalize(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.symbols[key]
	if !ok {
		return model.Symbol{}, fmt.Errorf("symbol %s: %w", key, model.ErrNotFound)
	}
	next, err := fn(cur)
	if err != nil {
		return model.Symbol{}, err
	}
	next.Symbol = cur.Symbol
	next.AddedAt = cur.AddedAt
	next.UpdatedAt = r.now()
	if err := r.p.SaveSymbol(ctx, next); err != nil {
		return model.Symbol{}, err
	}
	r.symbols[key] = next
	return next, nil
}

// Delete removes the symbol. It reports false if the symbol is unknown.
func (r *Registry) Delete(ctx context.Context, symbol string) (bool, error) {
	key := Normalize(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.symbols[key]; !ok {
		return false, nil
	}
	if err := r.p.DeleteSymbol(ctx, key); err != nil {
		return false, err
	}
	delete(r.symbols, key)
	return true, nil
}

// Sync upserts every catalog asset. New symbols are available when
// tradable; existing symbols keep their availability.
func (r *Registry) Sync(ctx context.Context, catalog model.AssetCatalog) (SyncResult, error) {
	assets, err := catalog.ListAssets(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("symbols: list assets: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var res SyncResult
	batch := make([]model.Symbol, 0, len(assets))
	for _, a := range assets {
		key := Normalize(a.Symbol)
		if key == "" {
			continue
		}
		cur, exists := r.symbols[key]
		if !exists {
			tradable := a.Tradable
			batch = append(batch, build(NewSymbol{
				Symbol:     key,
				Name:       a.Name,
				AssetClass: model.ParseAssetClass(a.Class),
				Exchange:   a.Exchange,
				Tradable:   &tradable,
				Available:  &tradable,
			}, now))
			res.Added++
			continue
		}

		next := cur
		if a.Name != "" {
			next.Name = a.Name
		}
		if a.Exchange != "" {
			next.Exchange = a.Exchange
		}
		next.AssetClass = model.ParseAssetClass(a.Class)
		next.Tradable = a.Tradable
		if next != cur {
			next.UpdatedAt = now
			batch = append(batch, next)
			res.Updated++
		}
	}

	if err := r.p.SaveSymbols(ctx, batch); err != nil {
		return SyncResult{}, err
	}
	for _, s := range batch {
		r.symbols[s.Symbol] = s
	}
	r.log.WithFields(logrus.Fields{"added": res.Added, "updated": res.Updated}).Info("symbols synced")
	return res, nil
}

// LatestPrice returns the latest price of a registered symbol.
func (r *Registry) LatestPrice(ctx context.Context, md model.MarketData, symbol string) (float64, error) {
	s, ok := r.Get(symbol)
	if !ok {
		return 0, fmt.Errorf("symbol %s: %w", Normalize(symbol), model.ErrNotFound)
	}
	return md.LatestPrice(ctx, s.Symbol)
}
