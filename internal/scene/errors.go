package scene

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"
)

// Error code constants for scene loading and validation.
const (
	ErrCodeRead             = "E201" // File could not be read
	ErrCodeUnsupported      = "E202" // Unknown file extension
	ErrCodeParse            = "E203" // YAML or CUE syntax error
	ErrCodeSchema           = "E204" // CUE schema violation
	ErrCodeDuplicateName    = "E205" // Name declared twice
	ErrCodeUnknownParent    = "E206" // Parent not declared
	ErrCodeCycle            = "E207" // Parent chain loops
	ErrCodeInvalidTransform = "E208" // Malformed rotation/translation/error
	ErrCodeInvalidTool      = "E209" // Bad tool frequency, period or parent
	ErrCodeUnknownReference = "E210" // Reference frame not declared
	ErrCodeRejected         = "E211" // A delegator rejected a build request
)

// LoadError is one problem found while loading or building a scene.
type LoadError struct {
	Code    string
	Message string
	// Field is the dotted path of the offending field, e.g. "nodes[2].parent".
	Field string
	Pos   token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	var b strings.Builder
	if e.Pos.IsValid() {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	b.WriteString(e.Code)
	b.WriteString(": ")
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// LoadErrors collects every problem found in one pass.
type LoadErrors []*LoadError

func (es LoadErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// Problems extracts the load errors carried by err, whether it is a single
// *LoadError or a LoadErrors list. Returns nil for other errors.
func Problems(err error) []*LoadError {
	var list LoadErrors
	if errors.As(err, &list) {
		return list
	}
	var one *LoadError
	if errors.As(err, &one) {
		return []*LoadError{one}
	}
	return nil
}

// HasCode reports whether any problem in err has the given code.
func HasCode(err error, code string) bool {
	for _, p := range Problems(err) {
		if p.Code == code {
			return true
		}
	}
	return false
}
