package semantic

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/buildlens/buildlens/pkg/intercept"
)

// Tool classifies one execution, independent of every other. A Tool is
// a pure function of the execution and its static configuration, so it
// is safe to evaluate concurrently and out of order.
type Tool interface {
	Recognize(exec intercept.Execution) RecognitionResult
}

// Builder assembles the recognition tool from the built-in compiler
// identities and the configured inclusions and exclusions. The result
// is a fixed, ordered composition: exclusions are evaluated first and
// always win over inclusions.
type Builder struct {
	recognize   []string
	exclude     []string
	excludeArgs []string
}

// NewBuilder returns a builder with only the built-in identities.
func NewBuilder() *Builder {
	return &Builder{}
}

// CompilersToRecognize adds executables treated as compilers beyond the
// built-in identities.
func (b *Builder) CompilersToRecognize(names ...string) *Builder {
	b.recognize = append(b.recognize, names...)
	return b
}

// CompilersToExclude adds executables that are never classified, even
// when they look like compilers.
func (b *Builder) CompilersToExclude(paths ...string) *Builder {
	b.exclude = append(b.exclude, paths...)
	return b
}

// CompilersToExcludeByArguments adds argument substrings that veto
// classification of any execution carrying them.
func (b *Builder) CompilersToExcludeByArguments(fragments ...string) *Builder {
	b.excludeArgs = append(b.excludeArgs, fragments...)
	return b
}

// Build produces the tool.
func (b *Builder) Build() Tool {
	excluded := make(map[string]struct{}, len(b.exclude))
	for _, p := range b.exclude {
		excluded[p] = struct{}{}
	}
	extra := make(map[string]struct{}, len(b.recognize))
	for _, p := range b.recognize {
		extra[p] = struct{}{}
	}
	return excluding{
		paths:     excluded,
		fragments: b.excludeArgs,
		inner:     gccTool{extra: extra},
	}
}

// excluding applies the configured vetoes before any classification.
type excluding struct {
	paths     map[string]struct{}
	fragments []string
	inner     Tool
}

func (e excluding) Recognize(exec intercept.Execution) RecognitionResult {
	if _, ok := e.paths[exec.Executable]; ok {
		return NotRecognized()
	}
	if _, ok := e.paths[filepath.Base(exec.Executable)]; ok {
		return NotRecognized()
	}
	for _, fragment := range e.fragments {
		for _, arg := range exec.Arguments {
			if strings.Contains(arg, fragment) {
				return NotRecognized()
			}
		}
	}
	return e.inner.Recognize(exec)
}

// Built-in compiler identities of the GCC and Clang families, including
// versioned and cross-prefixed spellings.
var (
	compilerNames = map[string]struct{}{
		"cc":      {},
		"c++":     {},
		"gcc":     {},
		"g++":     {},
		"clang":   {},
		"clang++": {},
	}
	versionedCompiler = regexp.MustCompile(`^(cc|c\+\+|gcc|g\+\+|clang|clang\+\+)-[0-9]+(\.[0-9]+)*$`)
	// Cross toolchains name the driver after the target triple. A lone
	// arbitrary token before the compiler name is not enough; anything
	// else compiler-like must be configured explicitly.
	prefixedCompiler = regexp.MustCompile(`^([A-Za-z0-9_.]+-){2,}(cc|c\+\+|gcc|g\+\+|clang|clang\+\+)$`)
	// Single-prefix wrapper drivers shipped by libc and fuzzing
	// toolchains.
	wrapperCompiler = regexp.MustCompile(`^(musl|afl)-(cc|c\+\+|gcc|g\+\+|clang|clang\+\+)$`)
)

// gccTool recognizes GCC-style compiler drivers and decomposes their
// command lines into passes.
type gccTool struct {
	extra map[string]struct{}
}

func (t gccTool) Recognize(exec intercept.Execution) RecognitionResult {
	if !t.matches(exec.Executable) {
		return NotRecognized()
	}
	return decomposeGcc(exec)
}

func (t gccTool) matches(executable string) bool {
	if _, ok := t.extra[executable]; ok {
		return true
	}
	base := filepath.Base(executable)
	if _, ok := t.extra[base]; ok {
		return true
	}
	if _, ok := compilerNames[base]; ok {
		return true
	}
	return versionedCompiler.MatchString(base) ||
		prefixedCompiler.MatchString(base) ||
		wrapperCompiler.MatchString(base)
}
