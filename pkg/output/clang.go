// Package output serializes recognized compiler meanings into a Clang
// compilation database (compile_commands.json).
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/buildlens/buildlens/pkg/semantic"
)

// Entry is one compilation database record: how one translation unit
// was compiled.
type Entry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Output    string   `json:"output,omitempty"`
	Arguments []string `json:"arguments"`
}

// Entries flattens a meaning into database records, one per Compile
// pass. Ignored meanings and non-compile passes yield nothing.
func Entries(m semantic.Meaning) []Entry {
	compiler, ok := m.(semantic.Compiler)
	if !ok {
		return nil
	}

	var entries []Entry
	for _, pass := range compiler.Passes {
		compile, ok := pass.(semantic.Compile)
		if !ok {
			continue
		}
		arguments := make([]string, 0, len(compile.Flags)+2)
		arguments = append(arguments, compiler.Compiler)
		arguments = append(arguments, compile.Flags...)
		arguments = append(arguments, compile.Source)
		entries = append(entries, Entry{
			Directory: compiler.WorkingDir,
			File:      compile.Source,
			Output:    compile.Output,
			Arguments: arguments,
		})
	}
	return entries
}

// Writer is the pipeline sink: it accepts every meaning (silently
// including Ignored ones) and persists the accumulated database on
// Close. A Close failure must fail the whole run.
type Writer struct {
	path    string
	entries []Entry
}

// NewWriter creates a sink writing to path.
func NewWriter(path string) *Writer {
	return &Writer{path: path, entries: []Entry{}}
}

// Write collects the entries of one meaning. It never fails.
func (w *Writer) Write(m semantic.Meaning) error {
	w.entries = append(w.entries, Entries(m)...)
	return nil
}

// Len returns the number of collected entries.
func (w *Writer) Len() int { return len(w.entries) }

// Close serializes the database. An empty database is valid output.
func (w *Writer) Close() error {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", w.path, err)
	}
	if err := w.encode(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	return nil
}

func (w *Writer) encode(out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(w.entries)
}
