// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/config"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/export"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/stream"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/transport"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/transport/udp"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/worker"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/pkg/build"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the live engine: consume inference batches and stream rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			_, err = serve(ctx, cfg)
			return err
		},
	}
}

// serve runs the engine until ctx is cancelled, then stops capture, exports
// the session and closes every transport. It returns the exported paths.
func serve(ctx context.Context, cfg *config.Config) ([]string, error) {
	// ==================== STARTUP PHASE ====================

	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return nil, err
	}
	proc, err := vitals.NewProcessor(settings, nil)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	defer func() {
		for _, c := range slices.Backward(closers) {
			if err := c(); err != nil {
				log.Warnf("Serve: Error during shutdown: %v", err)
			}
		}
	}()

	if cfg.Recording.Enabled {
		rec, err := startRecorder(cfg, settings.SampleRate)
		if err != nil {
			return nil, err
		}
		proc.SetSink(rec)
		closers = append(closers, rec.Close)
	}

	w := worker.New(proc, worker.DefaultQueueSize)
	runCtx, cancelRun := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(runCtx) }()
	closers = append(closers, func() error {
		cancelRun()
		return <-runErr
	})

	ws := transport.NewWebSocketTransport(cfg.Transport.WSAddress, w)
	if err := ws.Start(); err != nil {
		ws.Close()
		return nil, err
	}
	w.AddOutput(ws)
	closers = append(closers, ws.Close)

	if log.GetLevel() == log.LevelDebug {
		w.AddOutput(transport.NewLoggingTransport())
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return nil, err
		}
		closers = append(closers, sender.Close)

		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, w)
		if err != nil {
			return nil, err
		}
		pub.Start()
		closers = append(closers, pub.Close)
	}

	if cfg.Transport.NATSURL != "" {
		conn, err := stream.Connect(cfg.Transport.NATSURL, build.ClientName(defaultName))
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.Transport.NATSURL, err)
		}
		closers = append(closers, conn.Drain)

		w.AddOutput(stream.NewMetricsPublisher(conn, cfg.Transport.MetricsSubject))

		sub := stream.NewBatchSubscriber(conn, cfg.Transport.BatchSubject, w)
		if err := sub.Start(); err != nil {
			return nil, err
		}
		closers = append(closers, sub.Stop)
	}

	// ==================== CONCURRENT PHASE ====================

	st, err := w.StartCapture(ctx)
	if err != nil {
		return nil, err
	}
	log.Infof("Serve: Capture started (Session: %s)", st.SessionID)

	<-ctx.Done()

	// ==================== SHUTDOWN PHASE ====================

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if _, err := w.StopCapture(shutdownCtx); err != nil {
		return nil, fmt.Errorf("stopping capture: %w", err)
	}
	snap, err := w.Export(shutdownCtx)
	if err != nil {
		return nil, fmt.Errorf("exporting session: %w", err)
	}
	if snap.Metadata.TotalSamples == 0 {
		log.Infof("Serve: Session %s received no samples, nothing to export", snap.Metadata.SessionID)
		return nil, nil
	}
	return export.Save(cfg.Export.OutputDir, format, snap)
}

func startRecorder(cfg *config.Config, sampleRate float64) (*vitals.Recorder, error) {
	if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating recording directory: %w", err)
	}
	rec, err := vitals.NewRecorder(sampleRate, cfg.Recording.BitDepth)
	if err != nil {
		return nil, err
	}
	name := "recording-" + time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	if err := rec.StartRecording(filepath.Join(cfg.Recording.OutputDir, name)); err != nil {
		return nil, err
	}
	return rec, nil
}
