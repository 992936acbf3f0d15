package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlagRewriteEmptyIsNoop(t *testing.T) {
	assert.Nil(t, NewFlagRewrite(nil, nil))
	assert.NotNil(t, NewFlagRewrite([]string{"-DFOO"}, nil))
	assert.NotNil(t, NewFlagRewrite(nil, []string{"-Wall"}))
}

func TestRewriteRemoveThenAdd(t *testing.T) {
	rewrite := NewFlagRewrite([]string{"-DFOO"}, []string{"-Wall"})

	meaning := rewrite.Apply(Compiler{
		Compiler:   "/usr/bin/cc",
		WorkingDir: "/proj",
		Passes: []CompilerPass{
			Compile{Source: "a.c", Output: "a.o", Flags: []string{"-c", "-Wall", "a.c"}},
		},
	})

	compiler := meaning.(Compiler)
	compile := compiler.Passes[0].(Compile)
	assert.Equal(t, []string{"-c", "a.c", "-DFOO"}, compile.Flags)
}

// Applying the rewrite twice equals applying it once when the add and
// remove sets are disjoint.
func TestRewriteIdempotent(t *testing.T) {
	rewrite := NewFlagRewrite([]string{"-DFOO", "-O2"}, []string{"-Wall", "-Werror"})

	original := Compiler{
		Compiler: "/usr/bin/cc",
		Passes: []CompilerPass{
			Compile{Source: "a.c", Flags: []string{"-Wall", "-c", "-Werror", "-g"}},
		},
	}

	once := rewrite.Apply(original)
	twice := rewrite.Apply(once)
	assert.Equal(t, once, twice)
}

func TestRewriteFilterStability(t *testing.T) {
	rewrite := NewFlagRewrite(nil, []string{"-Wall"})

	t.Run("absent flag is a no-op", func(t *testing.T) {
		meaning := rewrite.Apply(Compiler{Passes: []CompilerPass{
			Compile{Source: "a.c", Flags: []string{"-c", "-g"}},
		}})
		compile := meaning.(Compiler).Passes[0].(Compile)
		assert.Equal(t, []string{"-c", "-g"}, compile.Flags)
	})

	t.Run("repeated flag loses all occurrences", func(t *testing.T) {
		meaning := rewrite.Apply(Compiler{Passes: []CompilerPass{
			Compile{Source: "a.c", Flags: []string{"-Wall", "-c", "-Wall", "-g", "-Wall"}},
		}})
		compile := meaning.(Compiler).Passes[0].(Compile)
		assert.Equal(t, []string{"-c", "-g"}, compile.Flags)
	})

	t.Run("surviving order unchanged", func(t *testing.T) {
		meaning := rewrite.Apply(Compiler{Passes: []CompilerPass{
			Compile{Source: "a.c", Flags: []string{"-g", "-Wall", "-O2", "-c"}},
		}})
		compile := meaning.(Compiler).Passes[0].(Compile)
		assert.Equal(t, []string{"-g", "-O2", "-c"}, compile.Flags)
	})
}

// A meaning with k passes still has k passes in the same order, with
// the same source and output, after the rewrite.
func TestRewritePreservesPasses(t *testing.T) {
	rewrite := NewFlagRewrite([]string{"-DFOO"}, []string{"-Wall"})

	meaning := rewrite.Apply(Compiler{
		Compiler: "/usr/bin/gcc",
		Passes: []CompilerPass{
			Compile{Source: "a.c", Output: "a.o", Flags: []string{"-Wall"}},
			Compile{Source: "b.c", Output: "b.o", Flags: []string{"-Wall"}},
			Link{Output: "prog", Objects: []string{"a.o", "b.o"}, Flags: []string{"-lm"}},
		},
	})

	compiler := meaning.(Compiler)
	require.Len(t, compiler.Passes, 3)

	first := compiler.Passes[0].(Compile)
	assert.Equal(t, "a.c", first.Source)
	assert.Equal(t, "a.o", first.Output)
	assert.Equal(t, []string{"-DFOO"}, first.Flags)

	second := compiler.Passes[1].(Compile)
	assert.Equal(t, "b.c", second.Source)
	assert.Equal(t, "b.o", second.Output)

	link := compiler.Passes[2].(Link)
	assert.Equal(t, "prog", link.Output)
	assert.Equal(t, []string{"-lm"}, link.Flags, "link passes pass through unchanged")
}

func TestRewriteIgnoredPassesThrough(t *testing.T) {
	rewrite := NewFlagRewrite([]string{"-DFOO"}, nil)
	assert.Equal(t, Meaning(Ignored{}), rewrite.Apply(Ignored{}))
}

func TestRewriteLinkOnlyMeaningPassesThrough(t *testing.T) {
	rewrite := NewFlagRewrite([]string{"-DFOO"}, nil)
	meaning := Compiler{Passes: []CompilerPass{Link{Output: "prog"}}}
	assert.Equal(t, Meaning(meaning), rewrite.Apply(meaning))
}

func TestNilRewriteIsIdentity(t *testing.T) {
	var rewrite *FlagRewrite
	meaning := Compiler{Passes: []CompilerPass{Compile{Source: "a.c", Flags: []string{"-c"}}}}
	assert.Equal(t, Meaning(meaning), rewrite.Apply(meaning))
}
