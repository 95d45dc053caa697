package tundra

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(segs []Segment) []TagKind {
	out := make([]TagKind, len(segs))
	for i, s := range segs {
		out[i] = s.Kind
	}
	return out
}

func TestTokenize(t *testing.T) {
	g := NewGrammar()

	t.Run("PlainText", func(t *testing.T) {
		segs := Tokenize(g, "just text")
		require.Len(t, segs, 1)
		assert.Equal(t, KindLiteral, segs[0].Kind)
		assert.Equal(t, "just text", segs[0].Text)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, Tokenize(g, ""))
	})

	t.Run("AllKinds", func(t *testing.T) {
		src := "a{# note #}b{{ x }}c{! y !}{% if x: %}d{% end %}{% let z = 1 %}"
		segs := Tokenize(g, src)
		assert.Equal(t, []TagKind{
			KindLiteral, KindComment, KindLiteral, KindPrint, KindLiteral, KindPrintPlain,
			KindCodeBegin, KindLiteral, KindCodeEnd, KindCode,
		}, kinds(segs))
		assert.Equal(t, "x", segs[3].Body)
		assert.Equal(t, "if x", segs[6].Body)
		assert.Equal(t, "let z = 1", segs[9].Body)

		// segments reassemble the source in order
		var sb strings.Builder
		for _, s := range segs {
			sb.WriteString(s.Text)
		}
		assert.Equal(t, src, sb.String())
	})

	t.Run("Offsets", func(t *testing.T) {
		segs := Tokenize(g, "ab{{ x }}")
		require.Len(t, segs, 2)
		assert.Equal(t, 0, segs[0].Offset)
		assert.Equal(t, 2, segs[1].Offset)
	})

	t.Run("MultilineComment", func(t *testing.T) {
		segs := Tokenize(g, "{# one\ntwo #}x")
		assert.Equal(t, []TagKind{KindComment, KindLiteral}, kinds(segs))
	})

	t.Run("PrintMustCloseOnSameLine", func(t *testing.T) {
		segs := Tokenize(g, "{{ x\n}}")
		require.Len(t, segs, 1)
		assert.Equal(t, KindLiteral, segs[0].Kind)
	})

	t.Run("Unterminated", func(t *testing.T) {
		segs := Tokenize(g, "a {{ b")
		require.Len(t, segs, 1)
		assert.Equal(t, "a {{ b", segs[0].Text)
	})

	t.Run("EscapedOpener", func(t *testing.T) {
		segs := Tokenize(g, "~{{ 1 }} {{ 2 }}")
		assert.Equal(t, []TagKind{KindLiteral, KindPrint}, kinds(segs))
		assert.Equal(t, "~{{ 1 }} ", segs[0].Text)
	})

	t.Run("CommentWinsTie", func(t *testing.T) {
		c := NewGrammar()
		require.NoError(t, c.Configure("comment", "<<", ">>"))
		require.NoError(t, c.Configure("print", "<<=", ">>"))
		segs := Tokenize(c, "<<= x >>")
		require.Len(t, segs, 1)
		assert.Equal(t, KindComment, segs[0].Kind)
	})

	t.Run("CustomDelimiters", func(t *testing.T) {
		c := NewGrammar()
		require.NoError(t, c.Configure("print", "[[", "]]"))
		segs := Tokenize(c, "{{ a }}[[ b ]]")
		assert.Equal(t, []TagKind{KindLiteral, KindPrint}, kinds(segs))
		assert.Equal(t, "b", segs[1].Body)
	})
}
