package rendercore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore/internal/layout"
)

// Sentinel errors. Typed errors below match them with errors.Is.
var (
	// ErrUnsupportedContext is matched by *UnsupportedContextError.
	ErrUnsupportedContext = errors.New("rendercore: no usable graphics context")

	// ErrInvalidState is matched by *StateError.
	ErrInvalidState = errors.New("rendercore: operation not allowed in current session state")

	// ErrTextureLoadFailed is matched by *TextureLoadError.
	ErrTextureLoadFailed = errors.New("rendercore: texture load failed")

	// ErrNoVertexBuffer is returned when attributes are described or a draw
	// is issued before vertex data was uploaded.
	ErrNoVertexBuffer = errors.New("rendercore: no vertex buffer uploaded")

	// ErrNoIndexBuffer is returned by indexed draws without index data.
	ErrNoIndexBuffer = errors.New("rendercore: no index buffer uploaded")

	// ErrUnsupportedFormat means an attribute's component count, type and
	// normalization have no vertex format.
	ErrUnsupportedFormat = layout.ErrUnsupportedFormat

	// ErrInvalidLayout reports an attribute that breaks the stride and
	// offset rules of its vertex buffer.
	ErrInvalidLayout = layout.ErrInvalidLayout

	// ErrLoadPending is returned by RequestLoad while a load is in flight.
	ErrLoadPending = errors.New("rendercore: texture load already pending")

	// ErrAlreadyLoaded is returned by RequestLoad once a texture is loaded.
	ErrAlreadyLoaded = errors.New("rendercore: texture already loaded")

	// ErrReleased is returned when using a released resource.
	ErrReleased = errors.New("rendercore: resource released")

	// ErrForeignResource is returned when a resource created by one session
	// is used with another.
	ErrForeignResource = errors.New("rendercore: resource belongs to another session")

	// ErrNoProgram is returned by DrawActive when no program is in use.
	ErrNoProgram = errors.New("rendercore: no active program")

	// ErrEmptyDraw is returned when a primitive resolves to zero elements.
	ErrEmptyDraw = errors.New("rendercore: draw has no elements")

	// ErrDrawRange is returned under WithStrictLayout when a draw reads
	// past the uploaded data.
	ErrDrawRange = errors.New("rendercore: draw range exceeds buffer contents")

	// ErrNoReadback is returned by ReadPixels while rendering to a host
	// surface.
	ErrNoReadback = errors.New("rendercore: pixels are not readable from a surface target")
)

// CompileError reports a shader stage that failed to compile. Log is never
// empty and carries line:column positions when the parser produced them.
type CompileError struct {
	Stage ShaderStage
	Log   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("rendercore: %s shader compile failed: %s", e.Stage, e.Log)
}

// LinkError reports a vertex/fragment pair that cannot form a program.
type LinkError struct {
	Log string
}

func (e *LinkError) Error() string {
	return "rendercore: program link failed: " + e.Log
}

// ValidationError lists advisory findings for a linked program. A program
// that fails validation is still usable.
type ValidationError struct {
	Log string
}

func (e *ValidationError) Error() string {
	return "rendercore: program validation: " + e.Log
}

// AttributeNotFoundError is returned when an operation receives
// AttributeNotFound instead of a resolved attribute location. Name is
// empty when the operation only takes a location.
type AttributeNotFoundError struct {
	Name string
}

func (e *AttributeNotFoundError) Error() string {
	if e.Name == "" {
		return "rendercore: attribute location is AttributeNotFound"
	}
	return fmt.Sprintf("rendercore: attribute %q not found", e.Name)
}

// UniformNotFoundError is returned by name-based uniform setters when the
// program declares no uniform of that name.
type UniformNotFoundError struct {
	Name string
}

func (e *UniformNotFoundError) Error() string {
	return fmt.Sprintf("rendercore: uniform %q not found", e.Name)
}

// TextureLoadError reports an asynchronous texture load that failed. The
// texture keeps its placeholder contents.
type TextureLoadError struct {
	Source string
	Reason string
	Err    error
}

func (e *TextureLoadError) Error() string {
	return fmt.Sprintf("rendercore: load texture %q: %s", e.Source, e.Reason)
}

// Is reports whether target is ErrTextureLoadFailed.
func (e *TextureLoadError) Is(target error) bool { return target == ErrTextureLoadFailed }

func (e *TextureLoadError) Unwrap() error { return e.Err }

// ContextAttempt records one backend tried while acquiring a device.
type ContextAttempt struct {
	Backend gputypes.Backend
	Err     error
}

// UnsupportedContextError is returned when no backend in the fallback chain
// produced a device.
type UnsupportedContextError struct {
	Attempts []ContextAttempt
}

func (e *UnsupportedContextError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrUnsupportedContext.Error() + ": no backends to try"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Backend, a.Err)
	}
	return ErrUnsupportedContext.Error() + " (" + strings.Join(parts, "; ") + ")"
}

// Is reports whether target is ErrUnsupportedContext.
func (e *UnsupportedContextError) Is(target error) bool { return target == ErrUnsupportedContext }

func (e *UnsupportedContextError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// StateError is returned when an operation is not allowed in the session's
// current state.
type StateError struct {
	Op    string
	State SessionState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("rendercore: %s not allowed in state %s", e.Op, e.State)
}

// Is reports whether target is ErrInvalidState.
func (e *StateError) Is(target error) bool { return target == ErrInvalidState }
