package tundra

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func literalProgram(key, text string) *Program {
	return &Program{Key: key, Nodes: []Node{{Op: OpLiteral, Text: text}}}
}

func newTestCache() *Cache {
	return NewCache(NewMemoryStore(), func(p *Program) (*Executable, error) {
		return Bind(p, defaultHelpers())
	})
}

func TestCache_FirstWriterWins(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	first, err := c.Set(ctx, "k", literalProgram("k", "first"))
	require.NoError(t, err)
	second, err := c.Set(ctx, "k", literalProgram("k", "second"))
	require.NoError(t, err)
	assert.Same(t, first, second)

	out, err := c.Get(ctx, "k", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", out)
}

func TestCache_GetMissing(t *testing.T) {
	c := newTestCache()
	_, err := c.Get(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrNotCached)
	assert.False(t, c.Has(context.Background(), "nope"))
}

func TestCache_Inactive(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	c.SetActive(false)
	assert.False(t, c.IsActive())

	p, err := c.Set(ctx, "k", literalProgram("k", "x"))
	require.NoError(t, err)
	assert.Equal(t, "k", p.Key)
	assert.False(t, c.Has(ctx, "k"))

	c.SetActive(true)
	assert.False(t, c.Has(ctx, "k"), "inactive cache must not have stored anything")
}

func TestCache_ConcurrentSet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	var wg sync.WaitGroup
	results := make([]*Program, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.Set(ctx, "k", literalProgram("k", "x"))
			if err != nil {
				t.Errorf("Set: %v", err)
				return
			}
			results[i] = p
		}(i)
	}
	wg.Wait()
	for _, p := range results {
		assert.Same(t, results[0], p)
	}

	xs := make([]*Executable, 8)
	for i := range xs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			xs[i], _ = c.Executable(ctx, "k")
		}(i)
	}
	wg.Wait()
	for _, x := range xs {
		assert.Same(t, xs[0], x)
	}
}

func TestCache_BindErrorIsNotMemoized(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	g := NewGrammar()
	_, err := c.Set(ctx, "bad", Generate("bad", g, Tokenize(g, "{% if x: %}"), false))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = c.Get(ctx, "bad", nil)
		var re *RenderError
		assert.ErrorAs(t, err, &re)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ok, err := s.SetIfAbsent(ctx, "a", literalProgram("a", "1"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SetIfAbsent(ctx, "a", literalProgram("a", "2"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	p, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", p.Nodes[0].Text)
}
