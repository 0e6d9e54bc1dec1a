// Command scanhead-ctl is an operator CLI for discovering scan heads,
// connecting to one, and driving a short scan from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scanhead-sdk/scanhead-go/internal/config"
	"github.com/scanhead-sdk/scanhead-go/internal/discovery"
	"github.com/scanhead-sdk/scanhead-go/internal/model"
	"github.com/scanhead-sdk/scanhead-go/internal/phase"
	"github.com/scanhead-sdk/scanhead-go/internal/system"
)

var (
	configPath string
	tuning     *config.TuningConfig
)

func loadTuning() *config.TuningConfig {
	if configPath == "" {
		return config.EmptyTuningConfig()
	}
	cfg, err := config.LoadTuningConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scanhead-ctl: loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func main() {
	root := &cobra.Command{
		Use:   "scanhead-ctl",
		Short: "Operator CLI for the scan head client runtime",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "tuning config JSON file (optional)")

	root.AddCommand(discoverCmd(), scanCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func discoverCmd() *cobra.Command {
	var windowMs int64
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Broadcast a discovery probe and list replying scan heads",
		RunE: func(cmd *cobra.Command, args []string) error {
			tuning = loadTuning()
			if windowMs > 0 {
				tuning.DiscoveryWindowMs = &windowMs
			}
			prober := discovery.NewProber(tuning, nil)
			ctx, cancel := context.WithTimeout(cmd.Context(), tuning.GetDiscoveryWindow()+time.Second)
			defer cancel()

			devices, err := prober.Discover(ctx)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("no scan heads found")
				return nil
			}
			for _, d := range devices {
				compat := "compatible"
				if !d.Compatible() {
					compat = "INCOMPATIBLE"
				}
				fmt.Printf("serial=%d server=%s client=%s version=%s state=%d (%s)\n",
					d.Serial, d.IPServer, d.IPClient, d.Version, d.State, compat)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&windowMs, "window-ms", 0, "override discovery window in milliseconds")
	return cmd
}

func scanCmd() *cobra.Command {
	var (
		host        string
		serial      uint32
		scanHeadID  uint16
		periodUs    uint32
		laserOnUs   uint32
		durationSec int
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Connect to one scan head and run a short profile-mode scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			tuning = loadTuning()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			prober := discovery.NewProber(tuning, nil)
			discoverCtx, cancelDiscover := context.WithTimeout(ctx, tuning.GetDiscoveryWindow()+time.Second)
			devices, err := prober.Discover(discoverCtx)
			cancelDiscover()
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}

			sys := system.New(tuning, nil)
			sys.SetDiscovered(devices)
			if _, err := sys.CreateScanHead(model.ScanHeadID(scanHeadID), model.SerialNumber(serial), host); err != nil {
				return err
			}

			b := phase.NewBuilder(tuning.GetMaxConfigurationGroups())
			b.AddPhase()
			if err := b.AddPhaseElement(model.PhaseElement{
				ScanHeadID: model.ScanHeadID(scanHeadID),
				Pair:       model.CameraLaserPair{CameraPort: 0, LaserPort: 0},
				Primary:    model.PrimaryCamera,
				OverrideConfig: model.Some(model.HeadConfig{DefaultLaserOnTimeUs: laserOnUs}),
			}); err != nil {
				return err
			}
			if err := sys.SetPhaseTable(b.Table()); err != nil {
				return err
			}

			if err := sys.Connect(ctx, tuning.GetConnectTimeout()); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer sys.Disconnect(context.Background())

			opts := model.ConfigurableOptions{PeriodUs: periodUs, DataFormat: model.DataFormatXYBrightnessFull, Mode: model.ModeProfile}
			if err := sys.StartScanning(ctx, opts); err != nil {
				return fmt.Errorf("start scanning: %w", err)
			}
			defer sys.StopScanning(context.Background())

			fmt.Printf("scanning head %d for %ds (ctrl-c to stop early)\n", scanHeadID, durationSec)
			deadline := time.After(time.Duration(durationSec) * time.Second)
			count := 0
			for {
				select {
				case <-ctx.Done():
					fmt.Printf("received %d profiles before interrupt\n", count)
					return nil
				case <-deadline:
					fmt.Printf("received %d profiles\n", count)
					return nil
				default:
				}
				if _, err := sys.TakeProfile(ctx, model.ScanHeadID(scanHeadID), 500*time.Millisecond); err != nil {
					continue
				}
				count++
			}
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "scan head IP address")
	cmd.Flags().Uint32Var(&serial, "serial", 0, "scan head serial number")
	cmd.Flags().Uint16Var(&scanHeadID, "scan-head-id", 1, "scan head id to assign")
	cmd.Flags().Uint32Var(&periodUs, "period-us", 2000, "scan period in microseconds")
	cmd.Flags().Uint32Var(&laserOnUs, "laser-on-us", 500, "laser-on time in microseconds")
	cmd.Flags().IntVar(&durationSec, "duration", 5, "scan duration in seconds")
	cmd.MarkFlagRequired("host")
	return cmd
}
