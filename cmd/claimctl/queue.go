package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/xelth-com/claimsync/internal/connectivity"
	"github.com/xelth-com/claimsync/internal/remote"
	"github.com/xelth-com/claimsync/internal/sync"
	"github.com/xelth-com/claimsync/internal/utils"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the device is holding",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.capture.StorageStats(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List queued mutations in drain order",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		items, err := e.store.QueueItems(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTION\tENTITY\tENTITY ID\tCLAIM\tATTEMPTS\tERROR")
		for _, it := range items {
			lastErr := ""
			if it.Error != nil {
				lastErr = *it.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\n",
				it.ID, it.Action, it.Entity, it.EntityID, it.ClaimID, it.Attempts, it.MaxAttempts, lastErr)
		}
		return w.Flush()
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Run one sync drain against the remote API",
	Long: `Probe the configured routes and, when one answers, replay the queue once.

Without configured routes the remote is assumed reachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		client := remote.NewClient(
			e.cfg.Remote.BaseURL,
			remote.NewHTTPClient(e.cfg.Remote.Timeout),
			utils.NewDeviceTokenSource(e.cfg.DeviceID, e.cfg.JWTSecret),
			nil,
		)
		monitor := connectivity.NewMonitor(connectivity.Config{
			Routes:  e.syncCfg.Routes,
			Prober:  client,
			OnRoute: client.SetBaseURL,
		})
		monitor.SetOnline(true)
		if !monitor.Probe(ctx) {
			return fmt.Errorf("no route reachable")
		}

		svc := sync.NewService(sync.Options{Store: e.store, Connectivity: monitor, Config: e.syncCfg})
		sync.RegisterDefaultAdapters(svc, client, e.store, e.sealer, nil)

		start := time.Now()
		progress, ran := svc.ProcessQueue(ctx)
		if !ran {
			return fmt.Errorf("drain did not run")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🔄 Drained %d/%d items in %v via %s\n",
			progress.Completed, progress.Total, time.Since(start).Round(time.Millisecond), client.BaseURL())
		for _, ie := range progress.Errors {
			kind := "retry"
			if ie.Permanent {
				kind = "exhausted"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "   ❌ %s %s/%s (%s, %d attempts)\n", ie.QueueID, ie.Entity, ie.EntityID, kind, ie.Attempts)
		}
		return nil
	},
}

var deadLetterCmd = &cobra.Command{
	Use:   "dead-letter",
	Short: "List archived items, or archive exhausted ones with --move",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if move, _ := cmd.Flags().GetBool("move"); move {
			n, err := e.store.MoveExhaustedToDeadLetter(ctx, e.syncCfg.DeadLetterMax)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🪦 Archived %d exhausted items\n", n)
		}

		letters, err := e.store.DeadLetters(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTION\tENTITY\tENTITY ID\tATTEMPTS\tDEAD AT\tLAST ERROR")
		for _, dl := range letters {
			lastErr := ""
			if dl.LastError != nil {
				lastErr = *dl.LastError
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				dl.ID, dl.Action, dl.Entity, dl.EntityID, dl.Attempts, dl.DeadAt.Format(time.RFC3339), lastErr)
		}
		return w.Flush()
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <dead-letter-id>...",
	Short: "Put archived items back on the queue with a fresh attempt budget",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		for _, id := range args {
			item, err := e.store.RequeueDeadLetter(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error requeueing %s: %v\n", id, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "♻️ %s -> %s\n", id, item.ID)
		}
		return nil
	},
}

func init() {
	deadLetterCmd.Flags().Bool("move", false, "archive exhausted queue items before listing")
}
