package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelkushtia/spotsdk/pkg/checkpoint"
	"github.com/pavelkushtia/spotsdk/pkg/config"
	"github.com/pavelkushtia/spotsdk/pkg/detector"
	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/manager"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath string
	stateFile  string
	daemonMode bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "spotsdk",
	Short: "SpotSDK - resilience agent for spot and preemptible instances",
	Long: `SpotSDK protects workloads running on spot/preemptible compute from
abrupt termination. It watches the cloud metadata service for a reclaim
signal and, within the provider deadline, drains the node, checkpoints
application state, and triggers replacement capacity.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"SpotSDK version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	runCmd.Flags().StringVar(&stateFile, "state-file", "", "file whose contents are checkpointed as application state")
	runCmd.Flags().BoolVar(&daemonMode, "daemon", false, "keep monitoring across instance lifecycles")

	checkCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	checkpointCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")

	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointDeleteCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(checkpointCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the resilience agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

		orch, err := manager.New(cfg, manager.Options{
			Snapshot:   fileSnapshot(stateFile),
			ForcedExit: func(state types.SessionState) { log.Warn("forced-exit hook invoked") },
		})
		if err != nil {
			return err
		}

		if cfg.EnableMetrics {
			mux := http.NewServeMux()
			mux.Handle("/metrics", orch.Metrics().Handler())
			go func() {
				addr := fmt.Sprintf(":%d", cfg.MetricsPort)
				if err := http.ListenAndServe(addr, mux); err != nil {
					log.Errorf("metrics server stopped", err)
				}
			}()
		}

		if err := orch.Start(); err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case state := <-orch.Done():
				log.Info(fmt.Sprintf("session finished: %s", state))
				if !daemonMode {
					return nil
				}
				if err := orch.Reset(); err != nil {
					return err
				}
				if err := orch.Start(); err != nil {
					return err
				}
			case sig := <-sigCh:
				log.Info(fmt.Sprintf("received %s, shutting down", sig))
				orch.Stop()
				return nil
			}
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe the metadata service once for a termination notice",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

		det, err := detector.New(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.DetectorTimeout)
		defer cancel()

		notice := det.Check(ctx)
		if notice == nil {
			fmt.Println("no termination notice")
			return nil
		}
		fmt.Printf("termination notice: provider=%s action=%s deadline=%ds effective=%s\n",
			notice.CloudProvider, notice.Action, notice.DeadlineSeconds,
			notice.EffectiveTime.Format(time.RFC3339))
		return nil
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect and manage stored checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openCheckpoints()
		if err != nil {
			return err
		}
		defer mgr.Close()

		records, err := mgr.List(context.Background())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no checkpoints")
			return nil
		}
		for _, record := range records {
			fmt.Printf("%s  %s  node=%s  size=%d\n",
				record.CheckpointID,
				record.CreatedAt.Format(time.RFC3339),
				record.OwnerNodeID,
				record.PayloadSize)
		}
		return nil
	},
}

var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete <checkpoint-id>",
	Short: "Delete a checkpoint by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openCheckpoints()
		if err != nil {
			return err
		}
		defer mgr.Close()

		if err := mgr.Delete(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

// openCheckpoints builds a checkpoint manager from the configured
// backend for the CLI subcommands.
func openCheckpoints() (*checkpoint.Manager, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	var store checkpoint.Store
	switch cfg.StateBackend {
	case "local":
		store, err = checkpoint.NewFileStore(cfg.StateDir)
	case "bolt":
		store, err = checkpoint.NewBoltStore(cfg.StateDir)
	default:
		return nil, fmt.Errorf("unknown state_backend: %s", cfg.StateBackend)
	}
	if err != nil {
		return nil, err
	}

	return checkpoint.NewManager(checkpoint.ManagerOptions{
		Store:          store,
		NodeID:         cfg.NodeID,
		MaxCheckpoints: cfg.MaxCheckpoints,
	})
}

// fileSnapshot checkpoints the contents of path as the application
// state. Without a state file the snapshot is an empty payload, which
// still exercises the recovery sequence.
func fileSnapshot(path string) checkpoint.SnapshotFunc {
	return func(ctx context.Context) ([]byte, error) {
		if path == "" {
			return []byte{}, nil
		}
		return os.ReadFile(path)
	}
}
