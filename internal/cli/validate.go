package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ValidationResult is the output of a successful validate.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Scene     string `json:"scene"`
	Reference string `json:"reference,omitempty"`
	Nodes     int    `json:"nodes"`
	Tools     int    `json:"tools"`
}

func (r ValidationResult) RenderText(w io.Writer, _ bool) {
	fmt.Fprintf(w, "✓ Scene %q valid (%d nodes, %d tools)\n", r.Scene, r.Nodes, r.Tools)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scene>",
		Short: "Validate a scene file",
		Long: `Validate a YAML or CUE scene file without building it.

CUE scenes are checked against the embedded schema; both formats are then
checked for duplicate names, unknown parents and parent cycles. Every
problem is reported, not just the first.

Exit codes:
  0 - Scene is valid
  1 - Scene has problems
  2 - Scene file could not be read`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Loading scene %s", path)

	desc, err := loadScene(formatter, path)
	if err != nil {
		return err
	}

	return formatter.Success(ValidationResult{
		Valid:     true,
		Scene:     desc.Name,
		Reference: desc.Reference,
		Nodes:     len(desc.Nodes),
		Tools:     len(desc.Tools),
	})
}
