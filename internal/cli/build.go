package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"lightflow/internal/flow"
)

func newBuildCmd() *cobra.Command {
	var pipelinePath string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a graph file from a YAML pipeline description",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(pipelinePath)
			if err != nil {
				return err
			}
			defer f.Close()

			reg, err := flow.BuildPipeline(f)
			if err != nil {
				return err
			}
			if err := flow.Save(reg, outputPath); err != nil {
				return err
			}
			slog.Info("graph file written", "path", outputPath, "tasks", len(reg.Tasks()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&pipelinePath, "file", "f", "", "pipeline YAML file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "flow.json", "graph file to write")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
