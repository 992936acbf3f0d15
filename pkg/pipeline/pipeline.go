// Package pipeline composes the semantic derivation: event source →
// recognizer → flag rewrite → output sink.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/buildlens/buildlens/pkg/intercept"
	"github.com/buildlens/buildlens/pkg/semantic"
)

// Sink consumes the derived meanings. It must silently accept Ignored
// values; a Close failure fails the whole run.
type Sink interface {
	Write(semantic.Meaning) error
	Close() error
}

// Stats summarizes one pipeline run.
type Stats struct {
	Events     uint64 // executions read from the log
	Recognized uint64 // recognized compiler calls (ignored ones included)
	Failed     uint64 // recognized but undecomposable, dropped
	Dropped    uint64 // malformed frames skipped
}

// Source yields captured envelopes in log encounter order.
// *intercept.Source is the production implementation.
type Source interface {
	Read() (intercept.Envelope, error)
}

// Run drains the source in log encounter order, classifies and rewrites
// each execution, and hands the results to the sink. Per-event problems
// (malformed frames, recognition failures) are logged and skipped; only
// source resource errors and sink errors abort the run. A run that
// recognizes nothing is valid and yields an empty database.
func Run(source Source, tool semantic.Tool, rewrite *semantic.FlagRewrite, sink Sink, logger *slog.Logger) (Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stats Stats

	for {
		env, err := source.Read()
		if errors.Is(err, io.EOF) || errors.Is(err, intercept.ErrTruncatedFrame) {
			break
		}
		if err != nil {
			if !errors.Is(err, intercept.ErrMalformedFrame) {
				return stats, err
			}
			// One bad record; everything before and after it is intact.
			stats.Dropped++
			logger.Warn("skipping malformed event", "err", err)
			continue
		}

		stats.Events++
		exec := env.Event.Execution

		result := tool.Recognize(exec)
		switch result.Status {
		case semantic.StatusNotRecognized:
			logger.Debug("execution not recognized", "executable", exec.Executable)
			continue
		case semantic.StatusFailed:
			stats.Failed++
			logger.Debug("execution recognized with failure", "executable", exec.Executable, "reason", result.Reason)
			continue
		}

		stats.Recognized++
		meaning := rewrite.Apply(result.Meaning)
		if _, ignored := meaning.(semantic.Ignored); ignored {
			logger.Debug("execution recognized, but ignored", "executable", exec.Executable)
		}
		if err := sink.Write(meaning); err != nil {
			return stats, fmt.Errorf("write output: %w", err)
		}
	}

	if err := sink.Close(); err != nil {
		return stats, fmt.Errorf("write output: %w", err)
	}
	return stats, nil
}
