package tundra

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrammar_Configure(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		open    string
		close   string
		wantErr bool
	}{
		{"print", "print", "[[", "]]", false},
		{"print plain", "print_plain", "[!", "!]", false},
		{"code", "code", "<%", "%>", false},
		{"comment", "comment", "/*", "*/", false},
		{"raw ignores close", "raw", `\`, "whatever", false},
		{"unknown kind", "bogus", "<", ">", true},
		{"structural kind", "block", "<", ">", true},
		{"empty open", "print", "", "}}", true},
		{"empty close", "code", "<%", "", true},
		{"collides with code", "print", "{%", "%}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGrammar()
			before := g.Definitions()
			err := g.Configure(tt.kind, tt.open, tt.close)
			if tt.wantErr {
				var cfgErr *ConfigurationError
				require.True(t, errors.As(err, &cfgErr), "want *ConfigurationError, got %v", err)
				assert.Equal(t, tt.kind, cfgErr.Kind)
				assert.Equal(t, before, g.Definitions(), "failed configure must not change the grammar")
				return
			}
			require.NoError(t, err)
			def, ok := g.Definition(TagKind(tt.kind))
			require.True(t, ok)
			assert.Equal(t, tt.open, def.Open)
			if tt.kind == "raw" {
				assert.Empty(t, def.Close)
				assert.Equal(t, tt.open, g.EscapeMarker())
			} else {
				assert.Equal(t, tt.close, def.Close)
			}
		})
	}
}

func TestGrammar_CloneIsIndependent(t *testing.T) {
	g := NewGrammar()
	c := g.Clone()
	require.NoError(t, g.Configure("print", "[[", "]]"))

	def, _ := c.Definition(KindPrint)
	assert.Equal(t, "{{", def.Open)
	segs := Tokenize(c, "{{ x }}")
	require.Len(t, segs, 1)
	assert.Equal(t, KindPrint, segs[0].Kind)
}

func TestReplaceDirective_SkipsEscaped(t *testing.T) {
	g := NewGrammar()
	var seen []string
	out := replaceDirective(g.reRequire, "a @require(x) b ~@require(y) c", func(groups []string) string {
		seen = append(seen, groups[0])
		return "[" + groups[0] + "]"
	})
	assert.Equal(t, []string{"x"}, seen)
	assert.Equal(t, "a [x] b ~@require(y) c", out)
}

func TestFindDirective_FirstMatchWins(t *testing.T) {
	g := NewGrammar()
	src := "{[ spread a ]}one{[ endspread ]}{[ spread a ]}two{[ endspread ]}"
	groups, ok := findDirective(g.reSpreadBlock, src, "a")
	require.True(t, ok)
	assert.Equal(t, "one", groups[1])

	_, ok = findDirective(g.reSpreadBlock, src, "b")
	assert.False(t, ok)
}
