package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atomistic/descriptor/internal/descriptor"
	"github.com/atomistic/descriptor/internal/monitoring/logging"
)

// standardizationTables is the on-disk form of the per-type mean/std tables
// produced by the stats command and consumed by forward.
type standardizationTables struct {
	Mean [][]float64 `json:"mean"`
	Std  [][]float64 `json:"std"`
}

// loadFrames reads a JSON array of frames.
func loadFrames(path string) ([]*descriptor.Frame, error) {
	var frames []*descriptor.Frame
	if err := readJSONFile(path, &frames); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("cli: %q contains no frames", path)
	}
	return frames, nil
}

// newEngine builds a descriptor engine from the loaded configuration.
func newEngine(c *CLIContext) (*descriptor.Descriptor, error) {
	return descriptor.New(c.Config.Descriptor,
		descriptor.WithLogger(c.Logger.Named("descriptor")),
		descriptor.WithMetrics(c.Metrics),
	)
}

func newStatsCmd() *cobra.Command {
	var framesPath, outputPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Run the statistics pass over training frames",
		Long:  "stats accumulates per-type moments of the environment matrix over the\ngiven frames and emits the standardization tables used by forward.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			frames, err := loadFrames(framesPath)
			if err != nil {
				return err
			}
			eng, err := newEngine(c)
			if err != nil {
				return err
			}
			if err := eng.ComputeStats(cmd.Context(), frames); err != nil {
				return err
			}

			mean, std := eng.Standardization()
			tables := standardizationTables{Mean: mean, Std: std}
			if outputPath == "" {
				return printJSON(cmd, tables)
			}
			data, err := json.MarshalIndent(tables, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(outputPath, data, 0o644); err != nil {
				return fmt.Errorf("cli: write %q: %w", outputPath, err)
			}
			c.Logger.Info("standardization tables written",
				logging.String("path", outputPath),
				logging.Int("frames", len(frames)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&framesPath, "frames", "f", "", "JSON file with training frames (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write tables to this file instead of stdout")
	_ = cmd.MarkFlagRequired("frames")
	return cmd
}
