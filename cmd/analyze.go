// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"math"
	"time"

	"bivo/internal/analysis"
	"bivo/internal/source"

	"github.com/spf13/cobra"
)

func newAnalyzeCommand(opts *options) *cobra.Command {
	var (
		threshold int
		taper     string
	)

	cmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Run the spectral test over a WAV recording, segment by segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			clip, err := source.LoadWAV(args[0])
			if err != nil {
				return err
			}

			acfg := cfg.Analysis
			if cmd.Flag("threshold").Changed {
				acfg.PowerThreshold = threshold
			}
			wf, err := analysis.ParseWindowFunc(taper)
			if err != nil {
				return err
			}
			rows, segLen, err := analyzeClip(clip, acfg, cfg.Sensor.SegmentSeconds, wf)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderVerdicts(args[0], clip.SampleRate, segLen, rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&threshold, "threshold", "t", 0, "Override analysis.power_threshold")
	cmd.Flags().StringVar(&taper, "window", "rectangular",
		"Taper for the floating point reference column: rectangular, hann, hamming, blackman, nuttall")
	return cmd
}

// analyzeClip cuts clip into segments of segmentSeconds at the clip's own
// rate and inspects each one, alongside a floating point reference summary.
// A clip shorter than one segment is analysed whole; a trailing partial
// segment is skipped as the sensor would never capture it.
func analyzeClip(clip source.Clip, cfg analysis.Config, segmentSeconds float64, wf analysis.WindowFunc) ([]segmentVerdict, int, error) {
	segLen := int(math.Round(segmentSeconds * float64(clip.SampleRate)))
	if segLen <= 0 || segLen > len(clip.Samples) {
		segLen = len(clip.Samples)
	}
	a, err := analysis.New(cfg, clip.SampleRate, segLen)
	if err != nil {
		return nil, 0, err
	}
	ref, err := analysis.NewReference(cfg, clip.SampleRate, wf)
	if err != nil {
		return nil, 0, err
	}

	var rows []segmentVerdict
	for i := 0; (i+1)*segLen <= len(clip.Samples); i++ {
		seg := clip.Samples[i*segLen : (i+1)*segLen]
		v := a.Inspect(seg)
		rows = append(rows, segmentVerdict{
			Index:     i,
			Start:     time.Duration(i) * time.Duration(segLen) * time.Second / time.Duration(clip.SampleRate),
			Verdict:   v,
			BinHz:     a.BinFrequency(v.Bin),
			Reference: ref.Summarize(seg, float64(cfg.FreqLower), float64(cfg.FreqUpper)),
		})
	}
	return rows, segLen, nil
}
