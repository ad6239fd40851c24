package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"scribe/buffer"
	"scribe/metrics"
	"scribe/types"

	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

// mockProvider implements the Provider interface for testing
type mockProvider struct {
	mu sync.Mutex

	continuations []string // response per call; the last one repeats
	replacements  []types.Replacement
	corrections   map[string]string
	actionResult  string
	err           error

	// block, when set, holds every call until it is closed or the context
	// is cancelled. ignoreCancel keeps calls blocked through cancellation.
	block        chan struct{}
	ignoreCancel bool

	continuationCalls int
	replacementCalls  int
	correctionCalls   int
	actionCalls       int
	active            int
	maxActive         int
	requests          []*types.SuggestionRequest
	words             []string
}

func newMockProvider() *mockProvider {
	return &mockProvider{corrections: map[string]string{}}
}

func (p *mockProvider) enter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active++
	p.maxActive = max(p.maxActive, p.active)
}

func (p *mockProvider) exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
}

func (p *mockProvider) wait(ctx context.Context) error {
	p.mu.Lock()
	block, ignore := p.block, p.ignoreCancel
	p.mu.Unlock()
	if block == nil {
		return ctx.Err()
	}
	if ignore {
		<-block
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *mockProvider) FetchContinuation(ctx context.Context, req *types.SuggestionRequest) (string, error) {
	p.enter()
	defer p.exit()

	p.mu.Lock()
	call := p.continuationCalls
	p.continuationCalls++
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if err := p.wait(ctx); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	if len(p.continuations) == 0 {
		return "", nil
	}
	return p.continuations[min(call, len(p.continuations)-1)], nil
}

func (p *mockProvider) FetchReplacements(ctx context.Context, req *types.SuggestionRequest) ([]types.Replacement, error) {
	p.mu.Lock()
	p.replacementCalls++
	p.mu.Unlock()

	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replacements, nil
}

func (p *mockProvider) CorrectWord(ctx context.Context, word string) (string, error) {
	p.mu.Lock()
	p.correctionCalls++
	p.words = append(p.words, word)
	p.mu.Unlock()

	if err := p.wait(ctx); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if fixed, ok := p.corrections[word]; ok {
		return fixed, nil
	}
	return word, nil
}

func (p *mockProvider) RunAction(ctx context.Context, action types.ActionType, text string) (string, error) {
	p.mu.Lock()
	p.actionCalls++
	p.mu.Unlock()
	if err := p.wait(ctx); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	return p.actionResult, nil
}

type providerStats struct {
	continuationCalls int
	replacementCalls  int
	correctionCalls   int
	actionCalls       int
	active            int
	maxActive         int
	requests          []*types.SuggestionRequest
	words             []string
}

func (p *mockProvider) stats() providerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return providerStats{
		continuationCalls: p.continuationCalls,
		replacementCalls:  p.replacementCalls,
		correctionCalls:   p.correctionCalls,
		actionCalls:       p.actionCalls,
		active:            p.active,
		maxActive:         p.maxActive,
		requests:          append([]*types.SuggestionRequest{}, p.requests...),
		words:             append([]string{}, p.words...),
	}
}

// mockClock implements Clock for testing
type mockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

func newMockClock() *mockClock {
	return &mockClock{
		now: time.Now(),
	}
}

func (c *mockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{
		fireTime: c.now.Add(d),
		f:        f,
	}
	c.timers = append(c.timers, t)
	return t
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves time forward and fires every timer that came due
func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	// Copy timers to avoid holding lock during callback
	var toFire, pending []*mockTimer
	for _, t := range c.timers {
		if !t.fireTime.After(c.now) {
			toFire = append(toFire, t)
		} else {
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	for _, t := range toFire {
		t.fire()
	}
}

type mockTimer struct {
	fireTime time.Time
	f        func()
	stopped  bool
	mu       sync.Mutex
}

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (t *mockTimer) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	f := t.f
	t.mu.Unlock()
	if f != nil {
		f()
	}
}

// recordingObserver keeps every signal it receives
type recordingObserver struct {
	mu         sync.Mutex
	loading    []bool
	correcting []bool
	content    int
	navigation [][2]int
}

func (o *recordingObserver) LoadingChanged(loading bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loading = append(o.loading, loading)
}

func (o *recordingObserver) CorrectingChanged(correcting bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.correcting = append(o.correcting, correcting)
}

func (o *recordingObserver) ContentChanged() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.content++
}

func (o *recordingObserver) NavigationChanged(active, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.navigation = append(o.navigation, [2]int{active, total})
}

func (o *recordingObserver) loadingSignals() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool{}, o.loading...)
}

func (o *recordingObserver) correctingSignals() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool{}, o.correcting...)
}

func (o *recordingObserver) lastNavigation() [2]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.navigation) == 0 {
		return [2]int{-1, 0}
	}
	return o.navigation[len(o.navigation)-1]
}

// --- Helper functions ---

const debounce = 350 * time.Millisecond

func testConfig() EngineConfig {
	return EngineConfig{
		Debounce:            debounce,
		CompletionTimeout:   5 * time.Second,
		MinContextChars:     50,
		NextParagraphChars:  50,
		EnableContinuations: true,
	}
}

// createTestEngine starts an engine over the given paragraphs with the caret
// at the end of the last one. It is stopped when the test ends.
func createTestEngine(t *testing.T, prov *mockProvider, clock *mockClock, config EngineConfig, paragraphs ...string) *Engine {
	t.Helper()
	buf := buffer.New(paragraphs...)
	eng, err := NewEngine(prov, buf, config, clock, metrics.NewTracker("", "", "test", ""))
	require.NoError(t, err)
	eng.View(caretAtEnd)
	eng.Start(context.Background())
	t.Cleanup(eng.Stop)
	return eng
}

func caretAtEnd(b *buffer.Buffer) {
	last := b.LastLeaf()
	b.SetCaret(buffer.Position{Node: last, Offset: last.Len()})
}

func typeText(s string) func(*buffer.Buffer) {
	return func(b *buffer.Buffer) { b.InsertText(s) }
}

func stateOf(e *Engine) state {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func activeIndexOf(e *Engine) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeIndex
}

func overlaysOf(e *Engine) []*buffer.Node {
	var nodes []*buffer.Node
	e.View(func(b *buffer.Buffer) { nodes = b.Overlays() })
	return nodes
}

func textOf(e *Engine) string {
	var s string
	e.View(func(b *buffer.Buffer) { s = b.Text() })
	return s
}

func serializeOf(e *Engine) string {
	var s string
	e.View(func(b *buffer.Buffer) { s = b.Serialize() })
	return s
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func waitForState(t *testing.T, e *Engine, want state) {
	t.Helper()
	waitFor(t, func() bool { return stateOf(e) == want }, "state "+want.String())
}
