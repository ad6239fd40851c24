package engine

import "slices"

// Observer receives engine signals. Callbacks run while the engine lock is
// held and must not call back into the engine.
type Observer interface {
	// LoadingChanged reports whether a suggestion request is outstanding
	LoadingChanged(loading bool)
	// CorrectingChanged reports whether a word correction is outstanding
	CorrectingChanged(correcting bool)
	// ContentChanged fires after the engine committed text to the buffer
	ContentChanged()
	// NavigationChanged reports the active overlay index (-1 for none) and
	// the number of overlays left
	NavigationChanged(active, total int)
}

// NopObserver implements Observer with no-ops. Embed it to handle a subset.
type NopObserver struct{}

func (NopObserver) LoadingChanged(bool)        {}
func (NopObserver) CorrectingChanged(bool)     {}
func (NopObserver) ContentChanged()            {}
func (NopObserver) NavigationChanged(int, int) {}

type subscription struct {
	id uint64
	o  Observer
}

// Subscribe registers o and returns a function that removes it.
func (e *Engine) Subscribe(o Observer) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observerSeq++
	id := e.observerSeq
	e.observers = append(e.observers, subscription{id: id, o: o})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.observers = slices.DeleteFunc(e.observers, func(s subscription) bool { return s.id == id })
	}
}

func (e *Engine) each(fn func(Observer)) {
	for _, s := range e.observers {
		fn(s.o)
	}
}

func (e *Engine) setLoading(loading bool) {
	if e.loading == loading {
		return
	}
	e.loading = loading
	e.each(func(o Observer) { o.LoadingChanged(loading) })
}

func (e *Engine) setCorrecting(correcting bool) {
	if e.correcting == correcting {
		return
	}
	e.correcting = correcting
	e.each(func(o Observer) { o.CorrectingChanged(correcting) })
}

func (e *Engine) notifyContentChanged() {
	e.each(func(o Observer) { o.ContentChanged() })
}

func (e *Engine) notifyNavigation() {
	active, total := e.activeIndex, len(e.overlays)
	e.each(func(o Observer) { o.NavigationChanged(active, total) })
}
