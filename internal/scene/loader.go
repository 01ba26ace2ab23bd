package scene

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Load reads a scene file. The format is chosen by extension: .yaml/.yml
// or .cue. The returned description has passed validation.
func Load(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRead, Message: fmt.Sprintf("reading scene: %v", err)}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cue":
		return ParseCUE(data, path)
	default:
		return nil, &LoadError{
			Code:    ErrCodeUnsupported,
			Message: fmt.Sprintf("unsupported scene format %q (want .yaml, .yml or .cue)", filepath.Ext(path)),
		}
	}
}

// ParseYAML parses and validates a YAML scene. Unknown fields are rejected.
func ParseYAML(data []byte) (*Description, error) {
	var desc Description
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&desc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Code: ErrCodeParse, Message: "scene file is empty"}
		}
		return nil, &LoadError{Code: ErrCodeParse, Message: fmt.Sprintf("parsing YAML: %v", err)}
	}

	desc.normalize()
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// ParseCUE parses a CUE scene, unifies it with the embedded #Scene schema
// and validates the result. filename is used for error positions.
func ParseCUE(data []byte, filename string) (*Description, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("compiling schema: %v", err)}
	}

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, convertCUEError(ErrCodeParse, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Scene")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEError(ErrCodeSchema, err)
	}

	var desc Description
	if err := unified.Decode(&desc); err != nil {
		return nil, &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("decoding scene: %v", err)}
	}

	desc.normalize()
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// convertCUEError turns a CUE error list into LoadErrors carrying the
// source position of each problem.
func convertCUEError(code string, err error) error {
	var errs LoadErrors
	for _, e := range cueerrors.Errors(err) {
		le := &LoadError{Code: code, Message: e.Error()}
		if path := e.Path(); len(path) > 0 {
			le.Field = strings.Join(path, ".")
		}
		if positions := cueerrors.Positions(e); len(positions) > 0 {
			le.Pos = positions[0]
		}
		errs = append(errs, le)
	}
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	return errs
}
