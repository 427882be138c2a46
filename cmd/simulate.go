// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/config"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/stream"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/pkg/build"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/pkg/synth"
	"github.com/spf13/cobra"
)

// batchTimeFormat is RFC 3339 with millisecond precision.
const batchTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// simulation describes a synthetic upstream producer.
type simulation struct {
	CardiacBPM float64
	RespBPM    float64
	Noise      float64
	Duration   time.Duration
	Seed       uint64
	Realtime   bool // pace frames at the sample rate
}

func newSimulateCmd(opts *options) *cobra.Command {
	sim := simulation{Realtime: true}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Publish synthetic inference batches on NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			settings, err := cfg.Settings()
			if err != nil {
				return err
			}
			url := cfg.Transport.NATSURL
			if url == "" {
				url = config.DefaultNATSURL
			}

			conn, err := stream.Connect(url, build.ClientName(defaultName+"-simulate"))
			if err != nil {
				return fmt.Errorf("connecting to NATS at %s: %w", url, err)
			}
			defer conn.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := sim.run(ctx, conn, cfg.Transport.BatchSubject, settings, time.Now())
			log.Infof("Simulate: Published %d batches to %s", n, cfg.Transport.BatchSubject)
			if err != nil {
				return err
			}
			return conn.Flush()
		},
	}

	cmd.Flags().Float64Var(&sim.CardiacBPM, "cardiac-bpm", 72, "Synthetic heart rate (beats/min)")
	cmd.Flags().Float64Var(&sim.RespBPM, "resp-bpm", 15, "Synthetic respiratory rate (breaths/min)")
	cmd.Flags().Float64Var(&sim.Noise, "noise", 0.05, "Standard deviation of additive Gaussian noise")
	cmd.Flags().DurationVar(&sim.Duration, "duration", 60*time.Second, "Length of the simulated session")
	cmd.Flags().Uint64Var(&sim.Seed, "seed", 1, "Noise generator seed")
	return cmd
}

// run generates one frame at a time, applies the admission policy and
// publishes every completed batch. Batch timestamps advance with the frame
// clock from start. It returns the number of published batches.
func (sim simulation) run(ctx context.Context, pub stream.Publisher, subject string, s vitals.Settings, start time.Time) (int, error) {
	gen := synth.NewGenerator(s.SampleRate, sim.CardiacBPM, sim.RespBPM, sim.Noise, sim.Seed)
	adm := vitals.NewAdmission(s.InitialWindow, s.SubsequentWindow)
	frames := int(sim.Duration.Seconds() * s.SampleRate)
	period := time.Duration(float64(time.Second) / s.SampleRate)

	var tick <-chan time.Time
	if sim.Realtime {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	log.Infof("Simulate: Generating %d frames at %.1f Hz (Cardiac: %.0f bpm, Respiratory: %.0f br/min)",
		frames, s.SampleRate, sim.CardiacBPM, sim.RespBPM)

	published := 0
	for i := range frames {
		if tick != nil {
			select {
			case <-ctx.Done():
				return published, nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return published, nil
		}

		c, r := gen.Next(1)
		b, ok := adm.Push(c[0], r[0])
		if !ok {
			continue
		}
		frameTime := start.Add(time.Duration(i+1) * period)
		b.Timestamp = frameTime.UTC().Format(batchTimeFormat)
		if err := stream.PublishBatch(pub, subject, b); err != nil {
			return published, fmt.Errorf("publishing batch %d: %w", published+1, err)
		}
		published++
		log.Debugf("Simulate: Batch %d (%d samples) at %s", published, len(b.Cardiac), b.Timestamp)
	}
	return published, nil
}
