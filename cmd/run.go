// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bivo/internal/analysis"
	"bivo/internal/capture"
	"bivo/internal/config"
	"bivo/internal/log"
	"bivo/internal/observe"
	"bivo/internal/pipeline"
	"bivo/internal/source"
	"bivo/internal/transport"
	"bivo/internal/transport/udp"
	"bivo/pkg/build"
	"bivo/pkg/utils"

	"golang.org/x/sync/errgroup"
)

var runLog = log.Named("sensor")

// runSensor brings up every component from cfg and serves the host until
// ctx is cancelled or the pipeline faults. Configuration errors surface
// before the sample source is touched.
func runSensor(ctx context.Context, cfg *config.Config) error {
	rate, segLen := cfg.SampleRate(), cfg.SegmentLength()

	analyzer, err := analysis.New(cfg.Analysis, rate, segLen)
	if err != nil {
		return err
	}
	if cfg.Transport.SerialPort == "" {
		return errors.New("no serial port: set transport.serial_port or --port")
	}

	src, closeSource, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	ctrl := capture.NewController(src)
	if err := ctrl.Init(capture.SourceParams{SampleRate: rate, Gain: cfg.Sensor.MicGain}); err != nil {
		return err
	}

	link, err := transport.OpenSerial(cfg.Transport.SerialPort, cfg.Transport.BaudRate)
	if err != nil {
		return err
	}
	defer link.Close()

	// Everything that can fail is built before any goroutine starts.
	// release runs once, on the error path or at shutdown.
	var closers []func(context.Context) error
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, fn := range closers {
				if err := fn(sctx); err != nil {
					runLog.Warnf("shutdown: %v", err)
				}
			}
		})
	}
	defer release()

	events, startEvents, err := newEventTransports(cfg)
	if err != nil {
		return err
	}
	closers = append(closers, func(context.Context) error { return events.Close() })

	metrics := observe.Discard()
	var metricsSrv *observe.Server
	if cfg.Metrics.Enabled {
		provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceVersion: build.GetBuildInfo().Version,
		})
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		closers = append(closers, provider.Shutdown)
		if metrics, err = observe.NewMetrics(provider.MeterProvider); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		metricsSrv = observe.NewServer(cfg.Metrics.ListenAddress, provider)
		closers = append([]func(context.Context) error{metricsSrv.Shutdown}, closers...)
	}

	deps := pipeline.Deps{
		Controller: ctrl,
		Analyzer:   analyzer,
		Link:       link,
		Metrics:    metrics,
	}
	if len(events) > 0 {
		deps.Events = events
	}
	p, err := pipeline.New(deps, rate, segLen, pipeline.Options{
		MaxAttempts:           cfg.Pipeline.MaxAttempts,
		Timeout:               cfg.Pipeline.Timeout,
		RetryWarnEvery:        cfg.Pipeline.RetryWarnEvery,
		HandshakeEverySegment: cfg.Pipeline.HandshakeEverySegment,
	})
	if err != nil {
		return err
	}

	acfg := analyzer.Config()
	lo, hi := analyzer.Bins()
	runLog.Infof("%s source at %d Hz, %d samples per segment, window %d, scaler %d, bins %d-%d (%d-%d Hz), threshold %d",
		cfg.Sensor.Source, rate, segLen, acfg.WindowSize, acfg.SampleScaler, lo, hi,
		analyzer.BinFrequency(lo), analyzer.BinFrequency(hi), acfg.PowerThreshold)
	runLog.Infof("waiting for host on %s at %d baud", cfg.Transport.SerialPort, cfg.Transport.BaudRate)

	g, gctx := errgroup.WithContext(ctx)
	startEvents(g)
	if metricsSrv != nil {
		g.Go(metricsSrv.ListenAndServe)
		runLog.Infof("serving metrics on %s/metrics", cfg.Metrics.ListenAddress)
	}
	g.Go(func() error { return p.Run(gctx) })

	// Run only notices cancellation between bytes; closing the link
	// releases a blocked read.
	g.Go(func() error {
		<-gctx.Done()
		_ = link.Close()
		release()
		return nil
	})

	err = g.Wait()
	runLog.Infof("stopped after %d attempts, %d segments forwarded", p.Attempts(), p.Forwarded())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newMonitor is replaced in tests.
var newMonitor = transport.NewMonitor

// newEventTransports builds the configured event transports without
// starting them. The returned start func launches their goroutines in g. On
// error every transport already built is closed.
func newEventTransports(cfg *config.Config) (transport.Fanout, func(g *errgroup.Group), error) {
	var events transport.Fanout
	var starts []func(g *errgroup.Group)

	if cfg.Transport.LogEvents {
		events = append(events, transport.NewLoggingTransport())
	}
	if cfg.Transport.MonitorEnabled {
		mon := newMonitor()
		events = append(events, mon)
		starts = append(starts, func(g *errgroup.Group) {
			g.Go(func() error { return mon.ListenAndServe(cfg.Transport.MonitorAddress) })
		})
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			_ = events.Close()
			return nil, nil, err
		}
		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPPacketGap, sender)
		if err != nil {
			_ = sender.Close()
			_ = events.Close()
			return nil, nil, err
		}
		events = append(events, pub)
		starts = append(starts, func(*errgroup.Group) { pub.Start() })
	}

	return events, func(g *errgroup.Group) {
		for _, start := range starts {
			start(g)
		}
	}, nil
}

// openSource builds the configured Sample Source. The returned func
// releases it.
func openSource(cfg *config.Config) (capture.Source, func(), error) {
	s := cfg.Sensor
	switch s.Source {
	case config.SourcePortAudio:
		if err := source.Initialize(); err != nil {
			return nil, nil, err
		}
		pa := source.NewPortAudio(source.PortAudioConfig{
			DeviceID:        s.InputDevice,
			FramesPerBuffer: s.FramesPerBuffer,
			LowLatency:      s.LowLatency,
		})
		return pa, func() {
			if n := pa.Dropped(); n > 0 {
				runLog.Debugf("microphone delivered %d samples outside captures", n)
			}
			if err := pa.Close(); err != nil {
				runLog.Warnf("closing microphone: %v", err)
			}
			if err := source.Terminate(); err != nil {
				runLog.Warnf("%v", err)
			}
		}, nil

	case config.SourceTone:
		t := source.NewTone(toneConfig(s))
		return t, func() { _ = t.Close() }, nil

	case config.SourceWAV:
		w, err := source.OpenWAV(s.WAVPath, s.Realtime)
		if err != nil {
			return nil, nil, err
		}
		return w, func() { _ = w.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown sample source %q", s.Source)
}

func toneConfig(s config.SensorConfig) source.ToneConfig {
	sines := make([]utils.Sinusoid, len(s.Tone.Sinusoids))
	for i, t := range s.Tone.Sinusoids {
		sines[i] = utils.Sinusoid{
			Frequency: t.Frequency,
			Amplitude: t.Amplitude,
			Phase:     t.Phase,
			Start:     t.Start,
			End:       t.End,
		}
	}
	return source.ToneConfig{
		Sinusoids: sines,
		Period:    s.Tone.Period,
		Realtime:  s.Realtime,
	}
}
