package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/probelab/probekit/algorithm"
	"github.com/probelab/probekit/event"
	"github.com/probelab/probekit/logging"
	"github.com/probelab/probekit/packet"
	"github.com/probelab/probekit/probe"
	"github.com/probelab/probekit/protocol"
	"github.com/probelab/probekit/xcmd"
)

// The run loop sweeps the IPv4 ttl the way a traceroute-style algorithm
// would, one probe per hop.
const maxSweepTTL = 30

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rebuild the packet in a ttl sweep, streaming build events to the log",
	Run: func(rawCmd *cobra.Command, _ []string) {
		if err := runRun(cmd); err != nil {
			var interrupted xcmd.Interrupted
			if errors.As(err, &interrupted) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	runCmd.Flags().IntVar(&cmd.Count, "count", maxSweepTTL, "Number of probes to build")
	runCmd.Flags().StringVar(&cmd.Interval, "interval", "200ms", "Delay between probes")
	runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd Cmd) error {
	cfg, err := LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	interval, err := time.ParseDuration(cmd.Interval)
	if err != nil {
		return fmt.Errorf("failed to parse interval: %w", err)
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	instance := algorithm.NewInstance(1, "ttl-sweep")

	dispatcher := algorithm.NewDispatcher(
		func(_ context.Context, ev *event.Event) error {
			return logEvent(log, ev)
		},
		algorithm.WithLog(log),
	)
	if err := dispatcher.Register(instance); err != nil {
		return err
	}

	pr := probe.New(
		protocol.Builtin(),
		probe.WithLog(log),
		probe.WithMaxPacketSize(int(cfg.MaxPacketSize)),
		probe.WithIssuer(instance),
		probe.WithSink(func(ev *event.Event) {
			if err := dispatcher.Post(ev); err != nil {
				log.Warnw("dropped event", "event", ev.String(), "error", err)
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		err := dispatcher.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	wg.Go(func() error {
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for i := 0; i < cmd.Count; i++ {
			ttl := i%maxSweepTTL + 1
			spec := cfg.Packet.WithField(protocol.NameIPv4, "ttl", strconv.Itoa(ttl))
			if err := pr.Build(spec); err != nil {
				return fmt.Errorf("could not build packet for ttl %d: %w", ttl, err)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		return nil
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}

func logEvent(log *zap.SugaredLogger, ev *event.Event) error {
	switch ev.Type() {
	case event.TypeFieldResolved:
		if r, ok := ev.Data().(packet.Resolved); ok {
			log.Infow("field resolved", "protocol", r.Protocol, "field", r.Field.String())
			return nil
		}
	case event.TypeProbeReady:
		if data, ok := ev.Data().([]byte); ok {
			log.Infow("probe ready", "bytes", len(data))
			return nil
		}
	}
	log.Infow("event", "event", ev.String(), "data", ev.Data())
	return nil
}
