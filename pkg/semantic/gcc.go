package semantic

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/buildlens/buildlens/pkg/intercept"
)

// Decomposition of GCC-style driver command lines. One invocation may
// compile several files, link, or both; every sub-operation becomes its
// own pass and every Compile pass keeps the original relative order of
// its flags.

type gccMode int

const (
	modeLink gccMode = iota // default driver behavior: compile then link
	modeCompile             // -c or -S, stop before linking
	modePreprocess          // -E, or -M/-MM dependency output
	modeQuery               // --version and friends, no input processed
)

// sourceExts are the input extensions the driver compiles.
var sourceExts = map[string]struct{}{
	".c": {}, ".i": {}, ".ii": {}, ".m": {}, ".mi": {}, ".mm": {},
	".C": {}, ".cc": {}, ".cp": {}, ".cxx": {}, ".cpp": {}, ".CPP": {}, ".c++": {},
	".s": {}, ".S": {}, ".sx": {},
}

// objectExts are inputs that only participate in linking.
var objectExts = map[string]struct{}{
	".o": {}, ".obj": {}, ".a": {}, ".so": {}, ".dylib": {}, ".lib": {},
}

// sepValueFlags take their value as the following argument when not
// spelled joined.
var sepValueFlags = map[string]struct{}{
	"-o": {}, "-I": {}, "-isystem": {}, "-iquote": {}, "-idirafter": {},
	"-include": {}, "-imacros": {}, "-D": {}, "-U": {}, "-x": {},
	"-MF": {}, "-MT": {}, "-MQ": {}, "-L": {}, "-l": {}, "-z": {},
	"-T": {}, "-u": {}, "-Xlinker": {}, "-Xpreprocessor": {}, "-Xassembler": {},
	"-arch": {}, "--param": {}, "-target": {}, "-framework": {},
}

// linkOnlyExact are driver flags that only affect the link step.
var linkOnlyExact = map[string]struct{}{
	"-shared": {}, "-static": {}, "-static-libgcc": {}, "-static-libstdc++": {},
	"-rdynamic": {}, "-pie": {}, "-no-pie": {}, "-nostdlib": {},
	"-nostartfiles": {}, "-nodefaultlibs": {}, "-s": {},
	"-Xlinker": {}, "-T": {}, "-z": {}, "-u": {}, "-framework": {}, "-l": {}, "-L": {},
}

// option is one driver option with the argument(s) it consumed.
type option struct {
	args     []string
	linkOnly bool
	isOutput bool
}

// decomposeGcc turns a recognized compiler execution into its passes.
func decomposeGcc(exec intercept.Execution) RecognitionResult {
	args := exec.Arguments
	// Tolerate both argv conventions: with and without the program name.
	if len(args) > 0 && filepath.Base(args[0]) == filepath.Base(exec.Executable) {
		args = args[1:]
	}

	mode := modeLink
	output := ""
	var sources, objects []string
	var options []option

	if len(args) == 1 && args[0] == "-v" {
		return Recognized(Ignored{})
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case isQueryFlag(arg):
			mode = modeQuery

		case arg == "-c" || arg == "-S":
			if mode == modeLink {
				mode = modeCompile
			}
			options = append(options, option{args: []string{arg}})

		case arg == "-E" || arg == "-M" || arg == "-MM":
			mode = modePreprocess
			options = append(options, option{args: []string{arg}})

		case strings.HasPrefix(arg, "@"):
			return Failed(fmt.Sprintf("response file %s not supported", arg))

		case strings.HasPrefix(arg, "-"):
			opt := option{args: []string{arg}, linkOnly: isLinkOnly(arg)}
			if _, wantsValue := sepValueFlags[arg]; wantsValue {
				if i+1 >= len(args) {
					return Failed(fmt.Sprintf("option %s is missing its argument", arg))
				}
				i++
				opt.args = append(opt.args, args[i])
				if arg == "-o" {
					output = args[i]
					opt.isOutput = true
				}
			}
			options = append(options, opt)

		default:
			ext := filepath.Ext(arg)
			if _, ok := sourceExts[ext]; ok {
				sources = append(sources, arg)
			} else if _, ok := objectExts[ext]; ok {
				objects = append(objects, arg)
			} else {
				// Unknown inputs (linker scripts, archives without a
				// conventional suffix) only matter to the link step.
				objects = append(objects, arg)
			}
		}
	}

	switch mode {
	case modeQuery, modePreprocess:
		return Recognized(Ignored{})
	case modeCompile:
		return compileOnly(exec, sources, output, options)
	default:
		return compileAndLink(exec, sources, objects, output, options)
	}
}

// compileOnly yields one Compile pass per source. The flags of every
// pass are the full option list in original order, including -c/-S and
// the output option, exactly as they appeared.
func compileOnly(exec intercept.Execution, sources []string, output string, options []option) RecognitionResult {
	if len(sources) == 0 {
		return Failed("no source files to compile")
	}

	var flags []string
	for _, opt := range options {
		flags = append(flags, opt.args...)
	}

	passes := make([]CompilerPass, 0, len(sources))
	for _, src := range sources {
		passes = append(passes, Compile{
			Source: src,
			Output: compileOutput(src, output, len(sources)),
			Flags:  flags,
		})
	}
	return Recognized(Compiler{
		Compiler:   exec.Executable,
		WorkingDir: exec.WorkingDir,
		Passes:     passes,
	})
}

// compileAndLink yields a Compile pass per source plus one Link pass.
// Link-only options and the link output stay out of the compile passes.
func compileAndLink(exec intercept.Execution, sources, objects []string, output string, options []option) RecognitionResult {
	if len(sources) == 0 && len(objects) == 0 {
		return Failed("no input files")
	}

	var compileFlags, linkFlags []string
	for _, opt := range options {
		if opt.linkOnly || opt.isOutput {
			linkFlags = append(linkFlags, opt.args...)
		} else {
			compileFlags = append(compileFlags, opt.args...)
		}
	}

	passes := make([]CompilerPass, 0, len(sources)+1)
	for _, src := range sources {
		passes = append(passes, Compile{
			Source: src,
			Flags:  compileFlags,
		})
	}

	linkOutput := output
	if linkOutput == "" {
		linkOutput = "a.out"
	}
	passes = append(passes, Link{
		Output:  linkOutput,
		Objects: append(append([]string{}, sources...), objects...),
		Flags:   linkFlags,
	})

	return Recognized(Compiler{
		Compiler:   exec.Executable,
		WorkingDir: exec.WorkingDir,
		Passes:     passes,
	})
}

// compileOutput resolves the object file a compile pass produces. An
// explicit -o only names the object when a single source is compiled.
func compileOutput(src, output string, sourceCount int) string {
	if output != "" && sourceCount == 1 {
		return output
	}
	base := filepath.Base(src)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".o"
}

func isQueryFlag(arg string) bool {
	switch arg {
	case "--version", "--help", "-dumpversion", "-dumpmachine", "-dumpspecs", "-###":
		return true
	}
	return strings.HasPrefix(arg, "-print-") || strings.HasPrefix(arg, "--print-")
}

func isLinkOnly(arg string) bool {
	if _, ok := linkOnlyExact[arg]; ok {
		return true
	}
	return strings.HasPrefix(arg, "-l") && len(arg) > 2 ||
		strings.HasPrefix(arg, "-L") && len(arg) > 2 ||
		strings.HasPrefix(arg, "-Wl,") ||
		strings.HasPrefix(arg, "-fuse-ld=")
}
