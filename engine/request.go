package engine

import (
	"context"
	"errors"

	"scribe/logger"
	"scribe/types"

	"golang.org/x/sync/errgroup"
)

// inflightRequest is the single outstanding suggestion request
type inflightRequest struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
}

type suggestionResult struct {
	id         uint64
	ctx        context.Context
	suggestion *types.Suggestion
	err        error
}

// doEdit handles any edit made outside the engine: it cancels the request in
// flight, reverts overlays and restarts the debounce window.
func (e *Engine) doEdit(event Event) {
	if e.guard.Held() {
		return
	}
	e.cancelRequest()
	if len(e.buf.Overlays()) > 0 {
		e.renderer.Clear()
	}
	if e.state == stateActive {
		e.resetNavigation()
		e.notifyNavigation()
	}
	e.state = stateIdle
	e.startDebounceTimer()
}

func (e *Engine) startDebounceTimer() {
	e.stopDebounceTimer()
	if !e.running() || (!e.config.EnableContinuations && !e.config.EnableReplacements) {
		return
	}
	e.debounceSeq++
	seq := e.debounceSeq
	e.debounceTimer = e.clock.AfterFunc(e.config.Debounce, func() {
		e.post(Event{Type: EventDebounceTimeout, Data: seq})
	})
}

func (e *Engine) stopDebounceTimer() {
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
}

// doRequestSuggestion starts the single suggestion request once the debounce
// window has elapsed.
func (e *Engine) doRequestSuggestion(event Event) {
	if seq, _ := event.Data.(uint64); seq != e.debounceSeq {
		logger.Debug("dropping stale debounce timeout %d", seq)
		return
	}
	e.debounceTimer = nil

	config := e.config
	if !config.EnableContinuations && !config.EnableReplacements {
		return
	}
	req := e.captureRequest()
	if req == nil {
		return
	}

	e.cancelRequest()
	e.requestSeq++
	var ctx context.Context
	var cancel context.CancelFunc
	if config.CompletionTimeout > 0 {
		ctx, cancel = context.WithTimeout(e.mainCtx, config.CompletionTimeout)
	} else {
		ctx, cancel = context.WithCancel(e.mainCtx)
	}
	inflight := &inflightRequest{id: e.requestSeq, ctx: ctx, cancel: cancel}
	e.inflight = inflight
	e.state = statePending
	e.setLoading(true)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		s, err := e.fetch(ctx, req, config)
		ev := Event{Type: EventSuggestionReady}
		if err != nil {
			ev.Type = EventSuggestionError
		}
		ev.Data = &suggestionResult{id: inflight.id, ctx: ctx, suggestion: s, err: err}
		e.post(ev)
	}()
}

// fetch runs the enabled fetches concurrently and merges them. A failed half
// is logged and contributes nothing. Only cancellation fails the whole fetch.
func (e *Engine) fetch(ctx context.Context, req *types.SuggestionRequest, config EngineConfig) (*types.Suggestion, error) {
	defer logger.Trace("engine.fetch")()

	var continuation string
	var replacements []types.Replacement

	g, gctx := errgroup.WithContext(ctx)
	if config.EnableContinuations {
		g.Go(func() error {
			c, err := e.provider.FetchContinuation(gctx, req)
			if err != nil {
				return swallow("continuation", err)
			}
			continuation = c
			return nil
		})
	}
	if config.EnableReplacements {
		g.Go(func() error {
			r, err := e.provider.FetchReplacements(gctx, req)
			if err != nil {
				return swallow("replacements", err)
			}
			replacements = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &types.Suggestion{Continuation: continuation}
	for _, r := range replacements {
		if !r.IsNoOp() {
			s.Replacements = append(s.Replacements, r)
		}
	}
	return s, nil
}

// swallow keeps cancellation as an error and logs everything else
func swallow(kind string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	logger.Error("%s fetch failed: %v", kind, err)
	return nil
}

// current reports whether a result belongs to the request in flight and its
// context is still live. It is checked before any buffer mutation.
func (e *Engine) current(res *suggestionResult) bool {
	if e.inflight == nil || e.inflight.id != res.id {
		logger.Debug("dropping result of superseded request %d", res.id)
		return false
	}
	if res.ctx.Err() != nil {
		logger.Debug("dropping result of cancelled request %d", res.id)
		return false
	}
	return true
}

func (e *Engine) doApplySuggestion(event Event) {
	res := event.Data.(*suggestionResult)
	if !e.current(res) {
		return
	}
	e.cancelRequest()
	e.state = stateIdle

	if res.suggestion.IsEmpty() {
		return
	}
	if !e.config.EnableContinuations {
		res.suggestion.Continuation = ""
	}
	if !e.config.EnableReplacements {
		res.suggestion.Replacements = nil
	}
	applied, ok := e.renderer.Apply(res.suggestion)
	if !ok || applied.Count() == 0 {
		return
	}

	e.overlays = e.renderer.Navigable()
	if len(e.overlays) == 0 {
		return
	}
	e.state = stateActive
	e.shownAt = e.clock.Now()
	e.activate(0)
	for _, n := range e.overlays {
		e.metrics.TrackShown(e.suggestionMetrics(n, applied.Generation))
	}
}

func (e *Engine) doSuggestionError(event Event) {
	res := event.Data.(*suggestionResult)
	if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
		logger.Debug("suggestion request %d canceled: %v", res.id, res.err)
	} else {
		logger.Error("suggestion request %d failed: %v", res.id, res.err)
	}
	if e.inflight != nil && e.inflight.id == res.id {
		e.cancelRequest()
		e.state = stateIdle
	}
}

func (e *Engine) doCancelRequest(event Event) {
	e.cancelRequest()
	e.state = stateIdle
}

// cancelRequest releases the request in flight and lowers the loading flag.
// It is also the exit path of a request whose result was consumed.
func (e *Engine) cancelRequest() {
	if e.inflight != nil {
		e.inflight.cancel()
		e.inflight = nil
	}
	e.setLoading(false)
}
