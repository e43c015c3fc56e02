// Package coordinator implements spec.md §4.6/§5: one worker goroutine per
// symbol, each owning a MatchingEngine and consuming submit/cancel requests
// off its own inbox so that, for any one symbol, submissions and
// cancellations are totally ordered and observe book state atomically.
// Symbols are otherwise fully independent and run in parallel, the same
// supervision shape as the teacher's connection worker pool
// (internal/worker.go), but request/response instead of fire-and-forget
// since Submit/Cancel are synchronous RPCs (spec.md §6).
package coordinator

import (
	"context"
	"strings"
	"sync"

	"fenrir/internal/common"
	"fenrir/internal/engine"
	"fenrir/internal/errs"
	"fenrir/internal/index"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const inboxSize = 256

// ConfigLookup resolves a symbol's tick/lot policy, typically backed by a
// static per-symbol table loaded at startup.
type ConfigLookup func(symbol string) engine.Config

type submitRequest struct {
	req  common.OrderRequest
	resp chan callResponse
}

type cancelRequest struct {
	orderID string
	resp    chan callResponse
}

type callResponse struct {
	result common.SubmissionResult
	err    error
}

type symbolWorker struct {
	symbol  string
	eng     *engine.Engine
	submits chan submitRequest
	cancels chan cancelRequest
}

func (w *symbolWorker) run(t *tomb.Tomb) error {
	log.Info().Str("symbol", w.symbol).Msg("symbol worker starting")
	for {
		select {
		case <-t.Dying():
			log.Info().Str("symbol", w.symbol).Msg("symbol worker stopping")
			return nil
		case sr := <-w.submits:
			result, err := w.eng.Submit(sr.req)
			sr.resp <- callResponse{result: result, err: err}
		case cr := <-w.cancels:
			result, err := w.eng.Cancel(cr.orderID)
			cr.resp <- callResponse{result: result, err: err}
		}
	}
}

// Coordinator routes submissions and cancellations to per-symbol workers,
// creating a worker (and its book) lazily on a symbol's first submission.
type Coordinator struct {
	mu      sync.RWMutex
	workers map[string]*symbolWorker
	index   *index.OrderIndex
	trades  engine.TradeSink
	sink    engine.PersistenceSink
	cfgFor  ConfigLookup
	t       *tomb.Tomb
}

// New constructs a Coordinator. Every worker it spawns runs under t; the
// caller is responsible for starting t (or a tomb.WithContext derivative)
// and for calling t.Kill/t.Wait to shut the exchange down cleanly.
func New(t *tomb.Tomb, idx *index.OrderIndex, trades engine.TradeSink, sink engine.PersistenceSink, cfgFor ConfigLookup) *Coordinator {
	if cfgFor == nil {
		cfgFor = func(string) engine.Config { return engine.Config{} }
	}
	return &Coordinator{
		workers: make(map[string]*symbolWorker),
		index:   idx,
		trades:  trades,
		sink:    sink,
		cfgFor:  cfgFor,
		t:       t,
	}
}

// canonicalSymbol upper-cases and trims a symbol per spec.md §3 ("symbol
// identifier (string, case-insensitive, canonicalized upper)").
func canonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (c *Coordinator) workerFor(symbol string) *symbolWorker {
	c.mu.RLock()
	w, ok := c.workers[symbol]
	c.mu.RUnlock()
	if ok {
		return w
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.workers[symbol]; ok {
		return w
	}

	cfg := c.cfgFor(symbol)
	w = &symbolWorker{
		symbol:  symbol,
		eng:     engine.New(symbol, c.index, c.trades, c.sink, cfg),
		submits: make(chan submitRequest, inboxSize),
		cancels: make(chan cancelRequest, inboxSize),
	}
	c.workers[symbol] = w
	c.t.Go(func() error { return w.run(c.t) })
	return w
}

func (c *Coordinator) getWorker(symbol string) (*symbolWorker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.workers[symbol]
	return w, ok
}

// Submit routes req to its symbol's worker and blocks for the result.
func (c *Coordinator) Submit(ctx context.Context, req common.OrderRequest) (common.SubmissionResult, error) {
	req.Symbol = canonicalSymbol(req.Symbol)
	if req.Symbol == "" {
		return common.SubmissionResult{}, errs.ErrInvalidOrder
	}
	w := c.workerFor(req.Symbol)

	resp := make(chan callResponse, 1)
	select {
	case w.submits <- submitRequest{req: req, resp: resp}:
	case <-ctx.Done():
		return common.SubmissionResult{}, ctx.Err()
	}

	select {
	case r := <-resp:
		return r.result, r.err
	case <-ctx.Done():
		return common.SubmissionResult{}, ctx.Err()
	}
}

// Cancel looks orderID up in the OrderIndex to find its symbol, then routes
// the cancellation to that symbol's worker and blocks for the result.
func (c *Coordinator) Cancel(ctx context.Context, orderID string) (common.SubmissionResult, error) {
	symbol, ok := c.index.Get(orderID)
	if !ok {
		return common.SubmissionResult{}, errs.ErrNotFound
	}
	w, ok := c.getWorker(symbol)
	if !ok {
		return common.SubmissionResult{}, errs.ErrNotFound
	}

	resp := make(chan callResponse, 1)
	select {
	case w.cancels <- cancelRequest{orderID: orderID, resp: resp}:
	case <-ctx.Done():
		return common.SubmissionResult{}, ctx.Err()
	}

	select {
	case r := <-resp:
		return r.result, r.err
	case <-ctx.Done():
		return common.SubmissionResult{}, ctx.Err()
	}
}

// Symbols returns the set of symbols with an active worker, for
// diagnostics.
func (c *Coordinator) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	symbols := make([]string, 0, len(c.workers))
	for s := range c.workers {
		symbols = append(symbols, s)
	}
	return symbols
}

// Engine exposes a symbol's underlying engine for read-only diagnostics
// (e.g. book snapshots); it must not be mutated outside the symbol's
// worker goroutine.
func (c *Coordinator) Engine(symbol string) (*engine.Engine, bool) {
	w, ok := c.getWorker(canonicalSymbol(symbol))
	if !ok {
		return nil, false
	}
	return w.eng, true
}

// PoisonedSymbols reports how many symbol workers are currently halted by an
// invariant violation, for the health signal required by spec.md §7.
func (c *Coordinator) PoisonedSymbols() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	count := 0
	for _, w := range c.workers {
		if w.eng.Poisoned() {
			count++
		}
	}
	return count
}
