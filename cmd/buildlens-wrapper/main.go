// Command buildlens-wrapper is the compiler front end of wrapper-mode
// capture. A build pointed at this binary instead of the real compiler
// reports the invocation to the collector, then execs the real compiler
// with the original arguments. Reporting failures never fail the
// wrapped compiler.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/buildlens/buildlens/internal/buildinfo"
	"github.com/buildlens/buildlens/pkg/intercept"
)

// WrappedCompilerEnv names the real compiler this wrapper stands in
// for. Without it the wrapper resolves its own invocation name on PATH,
// skipping itself.
const WrappedCompilerEnv = "BUILDLENS_WRAPPED_COMPILER"

func main() {
	if filepath.Base(os.Args[0]) == "buildlens-wrapper" && len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("buildlens-wrapper %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	compiler, err := resolveCompiler()
	if err != nil {
		logger.Error("cannot resolve wrapped compiler", "err", err)
		os.Exit(127)
	}

	report(compiler, logger)

	argv := append([]string{compiler}, os.Args[1:]...)
	if err := syscall.Exec(compiler, argv, os.Environ()); err != nil {
		logger.Error("exec failed", "compiler", compiler, "err", err)
		os.Exit(127)
	}
}

// report sends this invocation to the collector named by the hand-off
// variable. This is the one place the variable is read; everything past
// the process boundary takes the address explicitly.
func report(compiler string, logger *slog.Logger) {
	addr := os.Getenv(intercept.ReporterAddressEnv)
	if addr == "" {
		logger.Warn("no collector address in environment, not reporting")
		return
	}

	reporter, err := intercept.NewReporter(addr)
	if err != nil {
		logger.Warn("report failed", "err", err)
		return
	}
	defer reporter.Close()

	argv := append([]string{filepath.Base(compiler)}, os.Args[1:]...)
	if err := reporter.Report(intercept.NewProcessEvent(compiler, argv)); err != nil {
		logger.Warn("report failed", "err", err)
	}
}

// resolveCompiler finds the real compiler: the explicit override wins,
// otherwise the wrapper's own invocation name is looked up on PATH with
// the wrapper's directory skipped.
func resolveCompiler() (string, error) {
	if explicit := os.Getenv(WrappedCompilerEnv); explicit != "" {
		return explicit, nil
	}

	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate self: %w", err)
	}
	selfDir := filepath.Dir(self)
	name := filepath.Base(os.Args[0])

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" || dir == selfDir {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	if path, err := exec.LookPath(name); err == nil && filepath.Dir(path) != selfDir {
		return path, nil
	}
	return "", fmt.Errorf("no %q found on PATH outside %s; set %s", name, selfDir, WrappedCompilerEnv)
}
