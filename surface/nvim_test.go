package surface

import (
	"context"
	"strings"
	"sync"
	"testing"

	"scribe/buffer"
	"scribe/engine"
	"scribe/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upperProvider upper-cases action input and records what it was sent
type upperProvider struct {
	mu   sync.Mutex
	sent []string
}

func (p *upperProvider) FetchContinuation(context.Context, *types.SuggestionRequest) (string, error) {
	return "", nil
}

func (p *upperProvider) FetchReplacements(context.Context, *types.SuggestionRequest) ([]types.Replacement, error) {
	return nil, nil
}

func (p *upperProvider) CorrectWord(_ context.Context, word string) (string, error) {
	return word, nil
}

func (p *upperProvider) RunAction(_ context.Context, _ types.ActionType, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, text)
	return strings.ToUpper(text), nil
}

func newActionSurface(t *testing.T, prov engine.Provider, lines ...string) (*Nvim, *engine.Engine) {
	t.Helper()
	config := engine.DefaultEngineConfig()
	config.EnableContinuations = false
	config.UseAutocorrecting = false
	eng, err := engine.NewEngine(prov, buffer.New(lines...), config, nil, nil)
	require.NoError(t, err)
	eng.Start(context.Background())
	t.Cleanup(eng.Stop)
	return &Nvim{eng: eng, wake: make(chan struct{}, 1)}, eng
}

func TestRunActionUsesEditorRange(t *testing.T) {
	prov := &upperProvider{}
	s, eng := newActionSurface(t, prov, "héllo wörld", "second line")

	// byte columns: "wörld" spans 7..13 on row 1
	got, err := s.RunAction(context.Background(), "grammar", [2]int{1, 7}, [2]int{1, 13})

	require.NoError(t, err)
	assert.Equal(t, "WÖRLD", got, "result")
	assert.Equal(t, []string{"wörld"}, prov.sent, "selected text sent")

	var text string
	eng.View(func(b *buffer.Buffer) { text = b.Text() })
	assert.Equal(t, "héllo WÖRLD\nsecond line", text, "range replaced")
}

func TestRunActionAcrossLines(t *testing.T) {
	prov := &upperProvider{}
	s, eng := newActionSurface(t, prov, "one two", "three four")

	_, err := s.RunAction(context.Background(), "rephrase", [2]int{2, 5}, [2]int{1, 4})

	require.NoError(t, err)
	assert.Equal(t, []string{"two\nthree"}, prov.sent, "reversed range is normalized")

	var text string
	eng.View(func(b *buffer.Buffer) { text = b.Text() })
	assert.Equal(t, "one TWO\nTHREE four", text, "range replaced")
}

func TestRunActionEmptyRange(t *testing.T) {
	prov := &upperProvider{}
	s, _ := newActionSurface(t, prov, "nothing selected")

	_, err := s.RunAction(context.Background(), "summarize", [2]int{1, 3}, [2]int{1, 3})

	assert.ErrorIs(t, err, engine.ErrNoSelection, "collapsed range")
	assert.Empty(t, prov.sent, "service not called")
}
