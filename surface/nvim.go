package surface

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"scribe/buffer"
	"scribe/engine"
	"scribe/logger"
	"scribe/types"

	"github.com/neovim/go-client/nvim"
)

// Config holds editor-side settings
type Config struct {
	NsID int
}

// pending collects work requested by the engine until the render loop picks
// it up. Repeated requests coalesce.
type pending struct {
	sync       bool
	edit       bool
	content    bool
	render     bool
	loading    *bool
	correcting *bool
	keys       []engine.EventType
}

func (p pending) empty() bool {
	return !p.sync && !p.content && !p.render && p.loading == nil && p.correcting == nil && len(p.keys) == 0
}

// Nvim connects an engine to the current buffer of a Neovim instance. Editor
// lines and cursor are mirrored into the engine's tree; overlays are drawn by
// the scribe Lua module. All RPC traffic happens on one goroutine, outside
// the engine lock.
type Nvim struct {
	client *nvim.Nvim
	eng    *engine.Engine
	config Config

	mu      sync.Mutex
	pending pending
	wake    chan struct{}

	unsubscribe func()
	done        chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// New creates a surface for eng and subscribes it to engine signals
func New(client *nvim.Nvim, eng *engine.Engine, config Config) (*Nvim, error) {
	if client == nil {
		return nil, errors.New("surface: nvim client is required")
	}
	if eng == nil {
		return nil, errors.New("surface: engine is required")
	}
	s := &Nvim{
		client: client,
		eng:    eng,
		config: config,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.unsubscribe = eng.Subscribe(s)
	return s, nil
}

// Start registers the RPC handlers and starts the render loop. It must be
// called before the client is served.
func (s *Nvim) Start() error {
	if err := s.client.RegisterHandler("scribe_event", func(_ *nvim.Nvim, event string) {
		s.HandleEvent(event)
	}); err != nil {
		return fmt.Errorf("failed to register scribe_event: %w", err)
	}
	if err := s.client.RegisterHandler("scribe_key", func(_ *nvim.Nvim, key string) (bool, error) {
		return s.HandleKey(key), nil
	}); err != nil {
		return fmt.Errorf("failed to register scribe_key: %w", err)
	}
	if err := s.client.RegisterHandler("scribe_action", func(_ *nvim.Nvim, action string, start, end [2]int) (string, error) {
		return s.RunAction(context.Background(), action, start, end)
	}); err != nil {
		return fmt.Errorf("failed to register scribe_action: %w", err)
	}

	s.wg.Add(1)
	go s.run()
	return nil
}

// Close stops the render loop and detaches from the engine
func (s *Nvim) Close() {
	s.closeOnce.Do(func() {
		s.unsubscribe()
		close(s.done)
		s.wg.Wait()
	})
}

// HandleEvent handles a notification from the Lua side. Everything runs on
// the render loop so keys observe the text synced before them.
func (s *Nvim) HandleEvent(event string) {
	switch event {
	case "text_changed":
		s.request(func(p *pending) { p.sync, p.edit = true, true })
	case "cursor_moved":
		s.request(func(p *pending) { p.sync = true })
	default:
		ev := engine.EventTypeFromString(event)
		if !ev.IsKey() {
			logger.Debug("surface: unknown event %q", event)
			return
		}
		s.request(func(p *pending) { p.keys = append(p.keys, ev) })
	}
}

// HandleKey forwards a navigation or trigger key and reports whether the
// engine consumed it. Unconsumed keys keep their default editor behavior.
func (s *Nvim) HandleKey(key string) bool {
	ev := engine.EventTypeFromString(key)
	if !ev.IsKey() {
		return false
	}
	return s.eng.HandleKey(ev)
}

// RunAction rewrites the editor range from start to end (exclusive) with the
// named action. Positions are (1-based row, byte column) pairs as returned by
// nvim_win_get_cursor.
func (s *Nvim) RunAction(ctx context.Context, action string, start, end [2]int) (string, error) {
	var lines []string
	s.eng.View(func(b *buffer.Buffer) { lines = b.Lines() })
	from, to := rangeOffsets(lines, start, end)
	return s.eng.RunActionRange(ctx, types.ActionType(action), from, to)
}

// LoadingChanged implements engine.Observer
func (s *Nvim) LoadingChanged(loading bool) {
	s.request(func(p *pending) { p.loading = &loading })
}

// CorrectingChanged implements engine.Observer
func (s *Nvim) CorrectingChanged(correcting bool) {
	s.request(func(p *pending) { p.correcting = &correcting })
}

// ContentChanged implements engine.Observer
func (s *Nvim) ContentChanged() {
	s.request(func(p *pending) { p.content = true })
}

// NavigationChanged implements engine.Observer
func (s *Nvim) NavigationChanged(active, total int) {
	s.request(func(p *pending) { p.render = true })
}

// request records work and wakes the render loop without blocking, since
// observer callbacks run under the engine lock.
func (s *Nvim) request(fn func(*pending)) {
	s.mu.Lock()
	fn(&s.pending)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Nvim) take() pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = pending{}
	return p
}

func (s *Nvim) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		p := s.take()
		if p.empty() {
			continue
		}
		s.process(p)
	}
}

func (s *Nvim) process(p pending) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("surface: panic while syncing: %v", r)
		}
	}()

	if p.sync {
		if err := s.sync(p.edit); err != nil {
			logger.Error("surface: sync failed: %v", err)
		}
	}
	for _, key := range p.keys {
		s.eng.HandleKey(key)
	}
	if p.content {
		if err := s.writeBack(); err != nil {
			logger.Error("surface: write back failed: %v", err)
		}
	}
	if p.render || p.content {
		s.render()
	}
	if p.loading != nil {
		s.executeLua("require('scribe').set_loading(...)", *p.loading)
	}
	if p.correcting != nil {
		s.executeLua("require('scribe').set_correcting(...)", *p.correcting)
	}
}

// sync reads the editor lines and cursor into the engine. When the committed
// lines already match, as they do after a write back, only the caret moves.
func (s *Nvim) sync(edit bool) error {
	defer logger.Trace("surface.sync")()

	var raw [][]byte
	var cursor [2]int

	batch := s.client.NewBatch()
	batch.BufferLines(nvim.Buffer(0), 0, -1, false, &raw)
	batch.WindowCursor(nvim.Window(0), &cursor)
	if err := batch.Execute(); err != nil {
		return err
	}
	lines := toStrings(raw)

	changed := false
	s.eng.View(func(b *buffer.Buffer) {
		changed = !slices.Equal(b.Lines(), lines)
		if !changed {
			b.SetCaret(b.PositionAt(cursorOffset(lines, cursor[0], cursor[1])))
		}
	})
	if !changed || !edit {
		if changed {
			logger.Debug("surface: lines differ on cursor sync, waiting for text_changed")
		}
		return nil
	}

	s.eng.Update(func(b *buffer.Buffer) {
		b.SyncLines(lines)
		b.SetCaret(b.PositionAt(cursorOffset(lines, cursor[0], cursor[1])))
	})
	return nil
}

// writeBack copies the committed text and caret into the editor buffer
func (s *Nvim) writeBack() error {
	var lines []string
	var row, col int
	s.eng.View(func(b *buffer.Buffer) {
		lines = b.Lines()
		caret, _ := b.Caret()
		row, col = cursorPosition(lines, b.OffsetOf(caret))
	})

	batch := s.client.NewBatch()
	batch.SetBufferLines(nvim.Buffer(0), 0, -1, false, toBytes(lines))
	batch.SetWindowCursor(nvim.Window(0), [2]int{row, col})
	return batch.Execute()
}

// render hands every overlay to the Lua side, which replaces whatever it drew
// before in the namespace.
func (s *Nvim) render() {
	var items []Item
	s.eng.View(func(b *buffer.Buffer) { items = collectItems(b) })
	s.executeLua("require('scribe').render(...)", s.config.NsID, items)
}

func (s *Nvim) executeLua(code string, args ...any) {
	var result any
	batch := s.client.NewBatch()
	batch.ExecLua(code, &result, args...)
	if err := batch.Execute(); err != nil {
		logger.Error("surface: lua call failed: %v", err)
	}
}
