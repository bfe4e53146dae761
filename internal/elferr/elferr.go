// Package elferr defines the error taxonomy shared by every loader
// subpackage. Each kind maps to a section of spec §7: callers that need to
// branch on failure class should call Is with one of the exported Kind
// constants below rather than match on the message string.
package elferr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why an operation failed.
type Kind string

const (
	Args             Kind = "args"
	Header           Kind = "header"
	Section          Kind = "section"
	Access           Kind = "access"
	Reloc            Kind = "reloc"
	Range            Kind = "range"
	Sequence         Kind = "sequence"
	Alloc            Kind = "alloc"
	ImplausibleState Kind = "implausible_state"
	Runtime          Kind = "runtime"
)

// Error is the concrete error type produced by every constructor in this
// package. Kind lets callers branch without parsing Msg.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func new(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func ArgsErr(format string, args ...interface{}) error             { return new(Args, format, args...) }
func HeaderErr(format string, args ...interface{}) error           { return new(Header, format, args...) }
func SectionErr(format string, args ...interface{}) error          { return new(Section, format, args...) }
func AccessErr(format string, args ...interface{}) error           { return new(Access, format, args...) }
func RelocErr(format string, args ...interface{}) error            { return new(Reloc, format, args...) }
func RangeErr(format string, args ...interface{}) error            { return new(Range, format, args...) }
func SequenceErr(format string, args ...interface{}) error         { return new(Sequence, format, args...) }
func AllocErr(format string, args ...interface{}) error            { return new(Alloc, format, args...) }
func ImplausibleStateErr(format string, args ...interface{}) error { return new(ImplausibleState, format, args...) }
func RuntimeErr(format string, args ...interface{}) error          { return new(Runtime, format, args...) }

// Is reports whether err (or one it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
