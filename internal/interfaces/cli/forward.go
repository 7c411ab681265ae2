package cli

import (
	"github.com/spf13/cobra"

	"github.com/atomistic/descriptor/internal/checkpoint"
	"github.com/atomistic/descriptor/internal/descriptor"
	"github.com/atomistic/descriptor/internal/monitoring/logging"
)

// forwardResult is the JSON shape emitted per frame.
type forwardResult struct {
	Natoms     int                     `json:"natoms"`
	Descriptor [][]float64             `json:"descriptor"`
	QMat       [][]float64             `json:"qmat"`
	Attention  *descriptor.Diagnostics `json:"attention,omitempty"`
}

func newForwardCmd() *cobra.Command {
	var framesPath, statsPath string
	var withDiag bool

	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Evaluate the descriptor over frames",
		Long:  "forward runs the full pipeline (environment matrix, type-conditioned\nembedding, attention, invariant assembly) over the given frames and prints\nper-atom descriptors and rotation matrices as JSON.",
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

			if path := c.Config.Checkpoint.Path; path != "" {
				store, err := checkpoint.OpenFile(path)
				if err != nil {
					return err
				}
				if err := eng.Restore(store, c.Config.Checkpoint.Suffix); err != nil {
					return err
				}
				c.Logger.Info("checkpoint restored",
					logging.String("path", path),
					logging.String("suffix", c.Config.Checkpoint.Suffix))
			}

			// standardization comes from a prior stats run, or failing that
			// from the evaluated frames themselves
			if statsPath != "" {
				var tables standardizationTables
				if err := readJSONFile(statsPath, &tables); err != nil {
					return err
				}
				if err := eng.SetStandardization(tables.Mean, tables.Std); err != nil {
					return err
				}
			} else if err := eng.ComputeStats(cmd.Context(), frames); err != nil {
				return err
			}

			results := make([]forwardResult, 0, len(frames))
			for _, f := range frames {
				var out *descriptor.Output
				if withDiag {
					out, err = eng.ForwardWithDiagnostics(cmd.Context(), f)
				} else {
					out, err = eng.Forward(cmd.Context(), f)
				}
				if err != nil {
					return err
				}
				results = append(results, forwardResult{
					Natoms:     out.Natoms,
					Descriptor: out.Descriptor,
					QMat:       out.QMat,
					Attention:  out.Diagnostics,
				})
			}
			return printJSON(cmd, results)
		},
	}

	cmd.Flags().StringVarP(&framesPath, "frames", "f", "", "JSON file with frames to evaluate (required)")
	cmd.Flags().StringVarP(&statsPath, "stats", "s", "", "standardization tables from a prior stats run")
	cmd.Flags().BoolVar(&withDiag, "diagnostics", false, "include attention maps of the first atom")
	_ = cmd.MarkFlagRequired("frames")
	return cmd
}
