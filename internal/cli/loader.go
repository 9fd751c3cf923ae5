package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/Tabbleman/ncnn/internal/compiler"
	"github.com/Tabbleman/ncnn/internal/registry"
	"github.com/Tabbleman/ncnn/internal/rules"
)

// SourceBuiltin is the source reported for built-in rules.
const SourceBuiltin = "builtin"

// RuleSet is a built registry together with where each rule came from.
type RuleSet struct {
	Registry *registry.Registry

	// Manifest holds the merged manifest content; empty when no manifest
	// paths were given.
	Manifest *compiler.Manifest

	// Sources maps a rule name to SourceBuiltin or the manifest path that
	// declared it.
	Sources map[string]string
}

// LoadError represents an error that occurred while loading rules.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadManifests compiles and merges the manifests at paths, each a file or
// a directory. The first failing path stops loading.
func LoadManifests(paths []string) (*compiler.Manifest, map[string]string, error) {
	merged := &compiler.Manifest{}
	sources := make(map[string]string)
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return nil, nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest not found: %s", path)}
		}
		m, err := compiler.Load(path)
		if err != nil {
			return nil, nil, convertCompileError(err)
		}
		for _, r := range m.Rules {
			if _, ok := sources[r.Name]; !ok {
				sources[r.Name] = path
			}
		}
		merged.Merge(m)
	}
	return merged, sources, nil
}

// LoadRules builds the rule registry from the built-in rules, unless
// noBuiltins is set, followed by the manifests at paths in order.
//
// A manifest that fails validation yields every compiler.ValidationError;
// other failures yield a single *LoadError.
func LoadRules(paths []string, noBuiltins bool) (*RuleSet, []error) {
	m, sources, err := LoadManifests(paths)
	if err != nil {
		return nil, []error{err}
	}

	var known []registry.Canonical
	b := registry.NewBuilder()
	if !noBuiltins {
		known = rules.Canonicals()
		rules.Register(b)
		for _, r := range rules.Builtin() {
			sources[r.Name] = SourceBuiltin
		}
	}

	if verrs := compiler.Validate(m, known...); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, errs
	}

	reg, err := m.Register(b).Build()
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}}
	}
	return &RuleSet{Registry: reg, Manifest: m, Sources: sources}, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeLoadFailed,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// reportLoadErrors writes load failures through the formatter and returns
// the command error. Validation errors share the validate command's output.
func reportLoadErrors(f *OutputFormatter, errs []error) error {
	var verrs []compiler.ValidationError
	for _, err := range errs {
		var v compiler.ValidationError
		if errors.As(err, &v) {
			verrs = append(verrs, v)
		}
	}
	if len(verrs) > 0 {
		_ = outputValidationErrors(f, verrs)
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid rules: %d error(s)", len(verrs)))
	}

	var loadErr *LoadError
	if errors.As(errs[0], &loadErr) {
		_ = f.Error(loadErr.Code, loadErr.Error(), nil)
		return WrapExitError(ExitCommandError, "load rules", loadErr)
	}
	_ = f.Error(ErrCodeGeneric, errs[0].Error(), nil)
	return WrapExitError(ExitCommandError, "load rules", errs[0])
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No scenario files found
	ErrCodeLoadFailed  = "E004" // CUE load or compile failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // Registry build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeJournal     = "E008" // Journal open, read or write failed
	ErrCodeBadGraph    = "E009" // Graph text does not parse
	ErrCodeBadPattern  = "E010" // Pattern text does not parse

	// Run failures
	ErrCodeCycle   = "E_CYCLE"   // A rewrite recreated an earlier graph state
	ErrCodeQuota   = "E_QUOTA"   // The run exceeded max rewrites
	ErrCodeRun     = "E_RUN"     // Any other run failure
	ErrCodeDiverge = "E_DIVERGE" // Replay differs from the journal
)
