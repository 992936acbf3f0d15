package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildlens/buildlens/pkg/semantic"
)

func TestEntriesFromCompilerMeaning(t *testing.T) {
	entries := Entries(semantic.Compiler{
		Compiler:   "/usr/bin/cc",
		WorkingDir: "/proj",
		Passes: []semantic.CompilerPass{
			semantic.Compile{Source: "a.c", Output: "a.o", Flags: []string{"-c", "-o", "a.o"}},
			semantic.Link{Output: "prog", Objects: []string{"a.o"}},
		},
	})

	require.Len(t, entries, 1, "only compile passes become entries")
	assert.Equal(t, "/proj", entries[0].Directory)
	assert.Equal(t, "a.c", entries[0].File)
	assert.Equal(t, "a.o", entries[0].Output)
	assert.Equal(t, []string{"/usr/bin/cc", "-c", "-o", "a.o", "a.c"}, entries[0].Arguments)
}

func TestEntriesFromIgnoredMeaning(t *testing.T) {
	assert.Empty(t, Entries(semantic.Ignored{}))
}

func TestWriterAcceptsEverything(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "compile_commands.json"))

	require.NoError(t, w.Write(semantic.Ignored{}))
	require.NoError(t, w.Write(semantic.Compiler{Passes: []semantic.CompilerPass{semantic.Link{Output: "prog"}}}))
	require.NoError(t, w.Write(semantic.Compiler{
		Compiler:   "/usr/bin/cc",
		WorkingDir: "/proj",
		Passes:     []semantic.CompilerPass{semantic.Compile{Source: "a.c", Flags: []string{"-c"}}},
	}))

	assert.Equal(t, 1, w.Len())
	require.NoError(t, w.Close())
}

// A run with zero recognized compiler calls legitimately yields an
// empty compilation database.
func TestWriterEmptyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile_commands.json")
	w := NewWriter(path)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestWriterRoundTripsThroughFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile_commands.json")
	w := NewWriter(path)
	require.NoError(t, w.Write(semantic.Compiler{
		Compiler:   "/usr/bin/g++",
		WorkingDir: "/src",
		Passes: []semantic.CompilerPass{
			semantic.Compile{Source: "m.cc", Output: "m.o", Flags: []string{"-c", "-std=c++17"}},
		},
	}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "m.cc", entries[0].File)
	assert.Equal(t, []string{"/usr/bin/g++", "-c", "-std=c++17", "m.cc"}, entries[0].Arguments)
}

func TestWriterGolden(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile_commands.json")
	w := NewWriter(path)
	require.NoError(t, w.Write(semantic.Compiler{
		Compiler:   "/usr/bin/cc",
		WorkingDir: "/proj",
		Passes: []semantic.CompilerPass{
			semantic.Compile{Source: "a.c", Output: "a.o", Flags: []string{"-c", "-o", "a.o"}},
			semantic.Compile{Source: "b.c", Flags: []string{"-Wall"}},
		},
	}))
	require.NoError(t, w.Write(semantic.Ignored{}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "compile_commands", data)
}
