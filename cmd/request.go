// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"bivo/internal/log"
	"bivo/internal/source"
	"bivo/internal/transport"

	"github.com/spf13/cobra"
)

var requestLog = log.Named("host")

type requestOptions struct {
	count     int
	samples   int
	out       string
	timeout   time.Duration
	handshake bool
}

func newRequestCommand(opts *options) *cobra.Command {
	ro := requestOptions{}

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Act as the host: handshake with a sensor, request segments and save them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Transport.SerialPort == "" {
				return fmt.Errorf("no serial port: set transport.serial_port or --port")
			}
			if !cmd.Flag("samples").Changed {
				ro.samples = cfg.SegmentLength()
			}

			link, err := transport.OpenSerial(cfg.Transport.SerialPort, cfg.Transport.BaudRate)
			if err != nil {
				return err
			}
			defer link.Close()

			ctx := cmd.Context()
			if ro.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, ro.timeout)
				defer cancel()
			}
			// A blocked read only returns once the port is closed.
			stop := context.AfterFunc(ctx, func() { _ = link.Close() })
			defer stop()

			client := transport.NewClient(link)
			for i := range ro.count {
				if i == 0 || ro.handshake {
					if err := client.Handshake(ctx); err != nil {
						return fmt.Errorf("handshake: %w", err)
					}
				}
				start := time.Now()
				samples, err := client.Record(ctx, ro.samples)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return fmt.Errorf("segment %d: %w", i, err)
				}
				requestLog.Infof("segment %d: %d samples after %v", i, len(samples), time.Since(start).Round(time.Millisecond))

				if ro.out == "" {
					continue
				}
				path := segmentPath(ro.out, i, ro.count)
				if err := source.WriteWAV(path, source.Clip{Samples: samples, SampleRate: cfg.SampleRate()}); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), highlightStyle.Render("saved "+path))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&ro.count, "count", "n", 1, "Number of segments to request")
	f.IntVar(&ro.samples, "samples", 0, "Samples per segment, 0 reads until the end marker. Defaults to the configured segment length")
	f.StringVarP(&ro.out, "out", "o", "", "Write each segment to this WAV file (numbered when --count > 1)")
	f.DurationVar(&ro.timeout, "timeout", 0, "Give up after this long, 0 waits forever")
	f.BoolVar(&ro.handshake, "handshake-every", true, "Handshake before every segment, matching pipeline.handshake_every_segment")
	return cmd
}

// segmentPath numbers out when more than one segment is saved:
// calls.wav becomes calls-000.wav, calls-001.wav, ...
func segmentPath(out string, i, count int) string {
	if count <= 1 {
		return out
	}
	ext := filepath.Ext(out)
	return fmt.Sprintf("%s-%03d%s", strings.TrimSuffix(out, ext), i, ext)
}
