package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrParse marks a response that is not an array of arrays of
	// invocations, even after the repair pass.
	ErrParse = errors.New("plan: parse error")

	// ErrValidation marks a single invocation that was dropped: unknown
	// action id, undecodable param, or a param rejected by the action schema.
	ErrValidation = errors.New("plan: validation error")
)

// Kind classifies a [Diagnostic].
type Kind string

const (
	KindParse      Kind = "parse"
	KindValidation Kind = "validation"
)

// Diagnostic records something the parser dropped or could not read.
// Sequence and Index locate the entry in the raw response; both are -1 for
// whole-response problems.
type Diagnostic struct {
	Kind     Kind
	Sequence int
	Index    int
	ActionID string
	Err      error
}

func (d Diagnostic) String() string {
	if d.Sequence < 0 {
		return fmt.Sprintf("%s: %v", d.Kind, d.Err)
	}
	return fmt.Sprintf("%s: [%d][%d] %q: %v", d.Kind, d.Sequence, d.Index, d.ActionID, d.Err)
}

func parseDiag(format string, args ...any) Diagnostic {
	return Diagnostic{
		Kind:     KindParse,
		Sequence: -1,
		Index:    -1,
		Err:      fmt.Errorf("%w: "+format, append([]any{ErrParse}, args...)...),
	}
}

func validationDiag(seq, idx int, actionID string, format string, args ...any) Diagnostic {
	return Diagnostic{
		Kind:     KindValidation,
		Sequence: seq,
		Index:    idx,
		ActionID: actionID,
		Err:      fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...),
	}
}
