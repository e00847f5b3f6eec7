// SPDX-License-Identifier: MIT

// Package cmd is the bivo command line: the root command runs the sensor,
// the subcommands list hardware, analyse recordings offline and play the
// host side of the serial protocol.
package cmd

import (
	"context"
	"fmt"
	"os"

	"bivo/internal/config"
	"bivo/internal/log"
	"bivo/pkg/build"

	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	source     string
	port       string
	device     int
	logLevel   string
	verbose    bool
}

// Execute parses os.Args and runs the selected command until ctx is done.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	root.SetArgs(os.Args[1:])
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	info := build.GetBuildInfo()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         info.Description,
		Version:       info.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runSensor(cmd.Context(), cfg)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(
		newListCommand(),
		newAnalyzeCommand(opts),
		newRequestCommand(opts),
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "",
		"Path to the YAML configuration. Defaults to ./config.yaml when present")
	pf.StringVarP(&opts.source, "source", "s", "",
		"Sample source: portaudio, tone or wav. Overrides sensor.source")
	pf.StringVarP(&opts.port, "port", "p", "",
		"Serial port of the host link, e.g. /dev/ttyUSB0. Overrides transport.serial_port")
	pf.IntVarP(&opts.device, "device", "d", config.DefaultInputDevice,
		"Input device ID. Use the 'list' command to see available devices")
	pf.StringVar(&opts.logLevel, "log-level", "",
		"Log level: debug, info, warn or error. Overrides log_level")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output (same as --log-level debug)")

	return rootCmd
}

// load reads the configuration, applies explicitly set flags on top and
// sets the global log level.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := o.apply(cmd, cfg); err != nil {
		return nil, err
	}
	log.SetLevel(cfg.Level())
	return cfg, nil
}

// apply overrides cfg with the flags the user set and revalidates.
func (o *options) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := func(name string) bool {
		f := cmd.Flag(name)
		return f != nil && f.Changed
	}

	if changed("source") {
		cfg.Sensor.Source = o.source
	}
	if changed("port") {
		cfg.Transport.SerialPort = o.port
	}
	if changed("device") {
		cfg.Sensor.InputDevice = o.device
	}
	if changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if o.verbose {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
