package semantic

import "slices"

// FlagRewrite is the configured flag policy applied to recognized
// compiler calls. A nil or empty rewrite passes every meaning through
// untouched. The rewrite touches Compile passes only; Ignored meanings,
// Preprocess and Link passes always pass through unchanged.
type FlagRewrite struct {
	Add    []string
	Remove []string
}

// NewFlagRewrite returns the rewrite for the given policy, or nil when
// both lists are empty (the no-op state).
func NewFlagRewrite(add, remove []string) *FlagRewrite {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	return &FlagRewrite{Add: add, Remove: remove}
}

// Apply rewrites the flags of every Compile pass of a Compiler meaning
// and returns every other meaning unchanged. The number, order, source
// and output of the passes are never altered.
func (t *FlagRewrite) Apply(m Meaning) Meaning {
	if t == nil {
		return m
	}
	compiler, ok := m.(Compiler)
	if !ok {
		return m
	}

	passes := make([]CompilerPass, len(compiler.Passes))
	for i, pass := range compiler.Passes {
		if compile, ok := pass.(Compile); ok {
			passes[i] = t.rewrite(compile)
		} else {
			passes[i] = pass
		}
	}
	compiler.Passes = passes
	return compiler
}

// rewrite removes every exact-match occurrence of the remove set (a
// stable filter: surviving flags keep their relative order), then
// appends each add flag not already present. Skipping flags that are
// already present makes the rewrite idempotent whenever the add and
// remove sets are disjoint.
func (t *FlagRewrite) rewrite(pass Compile) Compile {
	flags := make([]string, 0, len(pass.Flags)+len(t.Add))
	for _, flag := range pass.Flags {
		if !slices.Contains(t.Remove, flag) {
			flags = append(flags, flag)
		}
	}
	for _, flag := range t.Add {
		if !slices.Contains(flags, flag) {
			flags = append(flags, flag)
		}
	}
	pass.Flags = flags
	return pass
}
