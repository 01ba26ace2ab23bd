package cli

import (
	"fmt"
	"io"

	"github.com/roach88/coordsys/internal/scene"
)

// ProblemView is one scene problem in command output.
type ProblemView struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ProblemList renders scene problems one per line in text mode.
type ProblemList []ProblemView

func (l ProblemList) RenderText(w io.Writer, _ bool) {
	for _, p := range l {
		loc := ""
		if p.File != "" {
			loc = fmt.Sprintf("%s:%d: ", p.File, p.Line)
		}
		if p.Field != "" {
			fmt.Fprintf(w, "  %s%s [%s]: %s\n", loc, p.Field, p.Code, p.Message)
			continue
		}
		fmt.Fprintf(w, "  %s[%s]: %s\n", loc, p.Code, p.Message)
	}
}

func problemViews(err error) ProblemList {
	problems := scene.Problems(err)
	if len(problems) == 0 {
		return ProblemList{{Code: ErrCodeGeneric, Message: err.Error()}}
	}

	views := make(ProblemList, 0, len(problems))
	for _, p := range problems {
		v := ProblemView{Code: p.Code, Field: p.Field, Message: p.Message}
		if p.Pos.IsValid() {
			v.File = p.Pos.Filename()
			v.Line = p.Pos.Line()
		}
		views = append(views, v)
	}
	return views
}

// loadScene loads a scene file, reporting problems through f. The
// returned error is an ExitError once the problems have been written.
func loadScene(f *OutputFormatter, path string) (*scene.Description, error) {
	desc, err := scene.Load(path)
	if err == nil {
		return desc, nil
	}

	problems := problemViews(err)
	code := ExitFailure
	if scene.HasCode(err, scene.ErrCodeRead) {
		code = ExitCommandError
	}
	if outErr := f.Error(problems[0].Code, fmt.Sprintf("scene %s has %d problem(s)", path, len(problems)), problems); outErr != nil {
		return nil, outErr
	}
	return nil, WrapExitError(code, "invalid scene", err)
}
