package cli

import (
	"bytes"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/coordsys/internal/delegator"
	"github.com/roach88/coordsys/internal/scene"
)

// DescribeResult holds the rendered state machine or scene tree.
type DescribeResult struct {
	Scene string `json:"scene,omitempty"`
	DOT   string `json:"dot,omitempty"`
	Tree  string `json:"tree,omitempty"`
}

func (r DescribeResult) RenderText(w io.Writer, _ bool) {
	if r.DOT != "" {
		io.WriteString(w, r.DOT)
		return
	}
	io.WriteString(w, r.Tree)
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe [scene]",
		Short: "Print the delegator state machine or a scene's node tree",
		Long: `Without arguments, print the coordinate-system delegator state machine
in Graphviz DOT form. With a scene file, build the scene and print its
node tree with every node's attachment state.

Examples:
  coordsys describe | dot -Tsvg > delegator.svg
  coordsys describe bench.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runDescribe(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var buf bytes.Buffer
	if len(args) == 0 {
		if err := delegator.WriteMachineDOT(&buf); err != nil {
			return WrapExitError(ExitFailure, "failed to render state machine", err)
		}
		return formatter.Success(DescribeResult{DOT: buf.String()})
	}

	desc, err := loadScene(formatter, args[0])
	if err != nil {
		return err
	}
	s, err := scene.Build(desc, scene.WithLogger(opts.logger(cmd.ErrOrStderr())))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build scene", err)
	}
	defer s.Close()

	if err := s.Graph().Dump(&buf); err != nil {
		return WrapExitError(ExitFailure, "failed to dump scene", err)
	}
	return formatter.Success(DescribeResult{Scene: desc.Name, Tree: buf.String()})
}
