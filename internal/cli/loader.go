package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/roach88/statewire/internal/graph"
	"github.com/roach88/statewire/internal/ir"
)

// LoadMode controls how errors are handled during graph loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll reports every validation error.
	LoadModeCollectAll
)

// Error codes shared by all commands. Graph validation errors keep the
// E1xx codes assigned by the graph package.
const (
	ErrCodeGeneric     = "E001" // unknown error
	ErrCodeNotAFile    = "E002" // path is a directory
	ErrCodeNotCUE      = "E003" // path lacks the .cue extension
	ErrCodeSyntax      = "E004" // CUE did not parse or evaluate
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeCompile     = "E006" // CUE is valid but not a graph
	ErrCodeWriteFailed = "E007" // output could not be written
	ErrCodeStore       = "E008" // database could not be opened or queried
)

// LoadError is a graph loading error with its CUE position, if known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadGraph compiles and validates the CUE graph at path. A nil spec means
// the file could not be compiled at all; a spec with errors compiled but
// failed validation.
func LoadGraph(path string, mode LoadMode) (*ir.GraphSpec, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("graph file not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing graph file: %v", err)}}
	}
	if info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotAFile, Message: fmt.Sprintf("not a file: %s", path)}}
	}
	if filepath.Ext(path) != ".cue" {
		return nil, []error{&LoadError{Code: ErrCodeNotCUE, Message: fmt.Sprintf("not a CUE file: %s", path)}}
	}

	spec, err := graph.CompileFile(path)
	if err != nil {
		return nil, []error{convertCompileError(err)}
	}

	verrs := graph.Validate(spec)
	if len(verrs) == 0 {
		return spec, nil
	}
	if mode == LoadModeFailFast {
		verrs = verrs[:1]
	}
	errs := make([]error, len(verrs))
	for i, v := range verrs {
		errs[i] = &LoadError{Code: v.Code, Message: fmt.Sprintf("%s: %s", v.Field, v.Message)}
	}
	return spec, errs
}

// convertCompileError converts a graph compile error to a LoadError with
// position info.
func convertCompileError(err error) *LoadError {
	var compileErr *graph.CompileError
	if errors.As(err, &compileErr) {
		code := ErrCodeCompile
		if compileErr.Field == "cue" {
			code = ErrCodeSyntax
		}
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// errorCode extracts the code and message of a loader error.
func errorCode(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// loadGraphOrExit is LoadGraph for commands that need a valid graph. Any
// error becomes an ExitCommandError.
func loadGraphOrExit(path string) (*ir.GraphSpec, error) {
	spec, errs := LoadGraph(path, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load graph", errs[0])
	}
	return spec, nil
}
