package engine

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"scribe/buffer"
	"scribe/caret"
	"scribe/logger"
	"scribe/metrics"
	"scribe/overlay"
	"scribe/types"
)

// Provider fetches suggestions and corrections from the completion service
type Provider interface {
	FetchContinuation(ctx context.Context, req *types.SuggestionRequest) (string, error)
	FetchReplacements(ctx context.Context, req *types.SuggestionRequest) ([]types.Replacement, error)
	CorrectWord(ctx context.Context, word string) (string, error)
	RunAction(ctx context.Context, action types.ActionType, text string) (string, error)
}

type EngineConfig struct {
	Debounce            time.Duration
	CompletionTimeout   time.Duration // 0 = no timeout
	MinContextChars     int           // below this the previous paragraph is prepended
	NextParagraphChars  int           // head of the next paragraph sent as after-caret text
	EnableContinuations bool
	EnableReplacements  bool
	UseAutocorrecting   bool
}

// DefaultEngineConfig returns the stock toggles and thresholds
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Debounce:            350 * time.Millisecond,
		CompletionTimeout:   10 * time.Second,
		MinContextChars:     50,
		NextParagraphChars:  50,
		EnableContinuations: true,
		EnableReplacements:  false,
		UseAutocorrecting:   true,
	}
}

const maxEventLoopRestarts = 3

// Engine drives suggestions for one editing session. It owns no buffer: the
// surface hands one in and keeps mutating it through Update.
type Engine struct {
	provider Provider
	buf      *buffer.Buffer
	tracker  *caret.Tracker
	guard    *caret.Guard
	renderer *overlay.Renderer
	metrics  *metrics.Tracker
	clock    Clock
	config   EngineConfig

	state       state
	overlays    []*buffer.Node
	activeIndex int
	shownAt     time.Time

	// Suggestion request pipeline
	debounceTimer Timer
	debounceSeq   uint64
	inflight      *inflightRequest
	requestSeq    uint64
	loading       bool

	// Autocorrect
	correcting       bool
	lastWord         string
	correctionSeq    uint64
	correctionCancel context.CancelFunc

	observers   []subscription
	observerSeq uint64

	mu        sync.Mutex
	eventChan chan Event
	wg        sync.WaitGroup
	restarts  atomic.Int32

	// Main context and cancel for the engine lifecycle
	mainCtx    context.Context
	mainCancel context.CancelFunc
	started    bool
	stopped    bool
	stopOnce   sync.Once
}

// NewEngine creates an engine over buf. A nil clock uses the wall clock and a
// nil tracker keeps local counters only.
func NewEngine(provider Provider, buf *buffer.Buffer, config EngineConfig, clock Clock, tracker *metrics.Tracker) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("engine: provider is required")
	}
	if buf == nil {
		return nil, errors.New("engine: buffer is required")
	}
	if clock == nil {
		clock = SystemClock
	}
	if tracker == nil {
		tracker = metrics.NewTracker("", "", "", "")
	}

	guard := &caret.Guard{}
	caretTracker := caret.NewTracker(buf, guard)

	return &Engine{
		provider:    provider,
		buf:         buf,
		tracker:     caretTracker,
		guard:       guard,
		renderer:    overlay.NewRenderer(buf, caretTracker),
		metrics:     tracker,
		clock:       clock,
		config:      config,
		state:       stateIdle,
		activeIndex: -1,
		eventChan:   make(chan Event, 100),
	}, nil
}

func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stopped || e.started {
		e.mu.Unlock()
		return
	}
	e.started = true

	// Create main context for engine lifecycle
	e.mainCtx, e.mainCancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.eventLoop(e.mainCtx)
	}()
	logger.Info("engine started")
}

// Stop cancels every outstanding request, reverts pending overlays and waits
// for the engine goroutines to exit.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		logger.Info("stopping engine...")

		e.stopped = true
		if e.mainCancel != nil {
			e.mainCancel()
		}
		e.stopDebounceTimer()
		e.cancelRequest()
		if e.correctionCancel != nil {
			e.correctionCancel()
			e.correctionCancel = nil
		}
		e.setCorrecting(false)
		e.renderer.Clear()
		e.resetNavigation()
		e.mu.Unlock()

		e.wg.Wait()
		logger.Info("engine stopped")
	})
}

// SetConfig swaps the toggles and thresholds. Requests already in flight
// keep the settings they started with.
func (e *Engine) SetConfig(config EngineConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = config
	if !config.EnableContinuations && !config.EnableReplacements {
		e.stopDebounceTimer()
		e.cancelRequest()
	}
}

// Config returns the current settings
func (e *Engine) Config() EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// Buffer returns the buffer the engine works on. Mutate it through Update.
func (e *Engine) Buffer() *buffer.Buffer {
	return e.buf
}

// Metrics returns the suggestion event tracker
func (e *Engine) Metrics() *metrics.Tracker {
	return e.metrics
}

// Update runs fn with exclusive access to the buffer and then treats the
// result as a user edit.
func (e *Engine) Update(fn func(b *buffer.Buffer)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	fn(e.buf)
	e.processEvent(Event{Type: EventTextChanged})
}

// View runs fn with exclusive access to the buffer without notifying an edit
func (e *Engine) View(fn func(b *buffer.Buffer)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.buf)
}

// NotifyEdit reports a content-changing keystroke that already landed in the
// buffer. Overlays are cleared and the debounce window restarts.
func (e *Engine) NotifyEdit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.processEvent(Event{Type: EventTextChanged})
}

// HandleKey routes a navigation or word-boundary key and reports whether the
// engine consumed it. Only Tab, Escape and Alt+Right are ever consumed, and
// only while an overlay is active.
func (e *Engine) HandleKey(key EventType) bool {
	if !key.IsKey() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	consumed := e.state == stateActive && (key == EventTab || key == EventEsc || key == EventAltRight)
	e.processEvent(Event{Type: key})
	return consumed
}

func (e *Engine) eventLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event loop panic recovered: %v\n%s", r, debug.Stack())
			if e.restarts.Add(1) > maxEventLoopRestarts {
				logger.Error("event loop restarted too many times, stopping engine")
				go e.Stop()
				return
			}
			e.eventLoop(ctx)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-e.eventChan:
			e.handleEvent(event)
		}
	}
}

func (e *Engine) handleEvent(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	e.processEvent(event)
}

// processEvent runs with e.mu held
func (e *Engine) processEvent(event Event) {
	logger.Debug("handle event: %v (state=%s)", event.Type, e.state)

	// Layer 1: state-independent events
	if e.handleBackgroundEvent(event) {
		return
	}
	// Layer 2: state machine
	e.dispatch(event)
}

func (e *Engine) handleBackgroundEvent(event Event) bool {
	switch event.Type {
	case EventSpace, EventEnter:
		e.triggerAutocorrect()
		return true
	case EventCorrectionReady, EventCorrectionError:
		e.handleCorrection(event.Data.(*correctionResult))
		return true
	}
	return false
}

// post delivers an event to the loop unless the engine is shutting down
func (e *Engine) post(ev Event) {
	select {
	case e.eventChan <- ev:
	case <-e.mainCtx.Done():
	}
}

// running reports whether background work may be scheduled
func (e *Engine) running() bool {
	return e.started && !e.stopped
}
