// Package semantic derives the meaning of captured executions: which
// ones are compiler invocations, what those invocations actually do,
// and how their flags should be rewritten for the compilation database.
package semantic

// Meaning is the classification outcome for one recognized execution.
// It is an ephemeral pipeline artifact, never persisted.
//
// Exactly two values exist: Ignored and Compiler.
type Meaning interface {
	meaning()
}

// Ignored marks a compiler invocation that performs no compilation
// relevant to the database (a version query, a pure dependency
// generation call, a preprocess-only call).
type Ignored struct{}

func (Ignored) meaning() {}

// Compiler is a decomposed compiler invocation: the compiler, the
// working directory it ran in, and the ordered sub-operations it
// performs. A single invocation may carry several passes.
type Compiler struct {
	Compiler   string
	WorkingDir string
	Passes     []CompilerPass
}

func (Compiler) meaning() {}

// CompilerPass is one semantic sub-operation of a compiler call.
// Exactly three kinds exist: Preprocess, Compile and Link.
type CompilerPass interface {
	pass()
}

// Preprocess is a preprocessing sub-operation with no database entry.
type Preprocess struct{}

func (Preprocess) pass() {}

// Compile is the compilation of one source file. Flags preserve the
// relative order they had on the original command line.
type Compile struct {
	Source string
	Output string
	Flags  []string
}

func (Compile) pass() {}

// Link is a linking sub-operation. It has no per-file compile flags and
// passes through every transformation unchanged.
type Link struct {
	Output  string
	Objects []string
	Flags   []string
}

func (Link) pass() {}

// Status is the top-level recognition verdict.
type Status int

const (
	// StatusNotRecognized: the executable is not compiler-like at all.
	StatusNotRecognized Status = iota
	// StatusRecognized: the execution is a compiler call and Meaning is set.
	StatusRecognized
	// StatusFailed: compiler-like, but the arguments could not be
	// decomposed. The execution is dropped from output; the run continues.
	StatusFailed
)

// RecognitionResult is the outcome of classifying one execution.
type RecognitionResult struct {
	Status  Status
	Meaning Meaning // set when Status == StatusRecognized
	Reason  string  // set when Status == StatusFailed
}

// NotRecognized is the common-case verdict for shells, make, file
// utilities and everything else that is not a compiler.
func NotRecognized() RecognitionResult {
	return RecognitionResult{Status: StatusNotRecognized}
}

// Recognized wraps a successfully derived meaning.
func Recognized(m Meaning) RecognitionResult {
	return RecognitionResult{Status: StatusRecognized, Meaning: m}
}

// Failed marks a compiler-like execution whose arguments resisted
// decomposition.
func Failed(reason string) RecognitionResult {
	return RecognitionResult{Status: StatusFailed, Reason: reason}
}
