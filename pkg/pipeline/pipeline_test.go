package pipeline

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildlens/buildlens/pkg/intercept"
	"github.com/buildlens/buildlens/pkg/output"
	"github.com/buildlens/buildlens/pkg/semantic"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func appendExecution(t *testing.T, log *intercept.EventLog, executable string, arguments ...string) {
	t.Helper()
	err := log.Append(intercept.Envelope{
		RID: 1,
		Event: intercept.Event{
			Execution: intercept.Execution{
				Executable: executable,
				Arguments:  arguments,
				WorkingDir: "/proj",
			},
		},
	})
	require.NoError(t, err)
}

// An event log holding the usual mix of a real build: compiler calls,
// unrelated tools, query calls, an undecomposable call, one malformed
// frame and a truncated tail. Everything decodable before the tail must
// flow through; nothing may abort the run.
func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "events.db")

	log, err := intercept.OpenEventLog(logPath)
	require.NoError(t, err)
	appendExecution(t, log, "/usr/bin/cc", "-c", "-Wall", "a.c", "-o", "a.o")
	appendExecution(t, log, "/bin/ls", "-l")
	appendExecution(t, log, "/usr/bin/gcc", "--version")
	appendExecution(t, log, "/usr/bin/gcc", "-c")
	require.NoError(t, log.Close())

	// One malformed frame, then one more good record, then a partial
	// trailing frame.
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	junk := []byte("][ not an envelope")
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(junk)))
	_, err = f.Write(append(prefix[:], junk...))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	log, err = intercept.OpenEventLog(logPath)
	require.NoError(t, err)
	appendExecution(t, log, "/usr/bin/g++", "-c", "b.cc")
	require.NoError(t, log.Close())

	f, err = os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x00, 0x00})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	source, err := intercept.OpenSource(logPath, testLogger())
	require.NoError(t, err)
	defer source.Close()

	tool := semantic.NewBuilder().Build()
	rewrite := semantic.NewFlagRewrite([]string{"-DFOO"}, []string{"-Wall"})
	outPath := filepath.Join(dir, "compile_commands.json")
	sink := output.NewWriter(outPath)

	stats, err := Run(source, tool, rewrite, sink, testLogger())
	require.NoError(t, err)

	assert.Equal(t, uint64(5), stats.Events)
	assert.Equal(t, uint64(3), stats.Recognized)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.True(t, source.Truncated())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var entries []output.Entry
	require.NoError(t, json.Unmarshal(data, &entries))

	require.Len(t, entries, 2)
	assert.Equal(t, "a.c", entries[0].File)
	assert.Equal(t, []string{"/usr/bin/cc", "-c", "-o", "a.o", "-DFOO", "a.c"}, entries[0].Arguments)
	assert.Equal(t, "b.cc", entries[1].File)
	assert.Equal(t, []string{"/usr/bin/g++", "-c", "-DFOO", "b.cc"}, entries[1].Arguments)
}

func TestPipelineEmptyLogIsValid(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "events.db")
	log, err := intercept.OpenEventLog(logPath)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	source, err := intercept.OpenSource(logPath, testLogger())
	require.NoError(t, err)
	defer source.Close()

	outPath := filepath.Join(dir, "compile_commands.json")
	stats, err := Run(source, semantic.NewBuilder().Build(), nil, output.NewWriter(outPath), testLogger())
	require.NoError(t, err)
	assert.Zero(t, stats.Events)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

type failingSource struct{ reads int }

func (s *failingSource) Read() (intercept.Envelope, error) {
	s.reads++
	if s.reads == 1 {
		return intercept.Envelope{
			Event: intercept.Event{Execution: intercept.Execution{
				Executable: "/usr/bin/cc",
				Arguments:  []string{"-c", "a.c"},
				WorkingDir: "/proj",
			}},
		}, nil
	}
	return intercept.Envelope{}, fmt.Errorf("read event log: %w", os.ErrPermission)
}

// A failing reader is a resource error, not a bad record; the run must
// abort instead of emitting a silently incomplete database.
func TestPipelineSourceFailureIsFatal(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "compile_commands.json")

	_, err := Run(&failingSource{}, semantic.NewBuilder().Build(), nil, output.NewWriter(outPath), testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.NoFileExists(t, outPath, "no database may be written for an aborted run")
}

type failingSink struct{}

func (failingSink) Write(semantic.Meaning) error { return nil }
func (failingSink) Close() error                 { return os.ErrPermission }

// A sink that cannot persist its output fails the whole run.
func TestPipelineSinkFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "events.db")
	log, err := intercept.OpenEventLog(logPath)
	require.NoError(t, err)
	appendExecution(t, log, "/usr/bin/cc", "-c", "a.c")
	require.NoError(t, log.Close())

	source, err := intercept.OpenSource(logPath, testLogger())
	require.NoError(t, err)
	defer source.Close()

	_, err = Run(source, semantic.NewBuilder().Build(), nil, failingSink{}, testLogger())
	assert.Error(t, err)
}
