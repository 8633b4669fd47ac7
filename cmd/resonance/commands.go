package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adam-kernel/resonance-go/pkg/core"
	"github.com/adam-kernel/resonance-go/pkg/monitor"
	"github.com/adam-kernel/resonance-go/pkg/store"
	"github.com/adam-kernel/resonance-go/pkg/validation"
	"github.com/adam-kernel/resonance-go/pkg/watch"
)

func newAppendCmd() *cobra.Command {
	var (
		source string
		kind   string
		charge float64
	)
	cmd := &cobra.Command{
		Use:   "append <content>",
		Short: "Append one event to the stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			event := &core.Event{
				Source:  core.Source(source),
				Kind:    core.EventKind(kind),
				Content: args[0],
			}
			if cmd.Flags().Changed("charge") {
				event.AffectiveCharge = core.Float64(charge)
			}
			id, err := client.Store().Append(cmd.Context(), event)
			if err != nil {
				return err
			}
			printf(cmd, "event %d at %.6f\n", id, event.Timestamp)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", string(core.SourceUser), "producing daemon")
	cmd.Flags().StringVar(&kind, "kind", string(core.KindObservation), "event kind")
	cmd.Flags().Float64Var(&charge, "charge", 0, "affective charge in [-1,1]")
	return cmd
}

func newQueryCmd() *cobra.Command {
	var (
		source string
		kind   string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List recent events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			events, err := client.Query(cmd.Context(), &store.QueryOptions{
				Source: core.Source(source),
				Kind:   core.EventKind(kind),
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			for _, e := range events {
				charge := "     "
				if e.AffectiveCharge != nil {
					charge = fmt.Sprintf("%+.2f", *e.AffectiveCharge)
				}
				printf(cmd, "%8d  %s  %-12s %-16s %s  %s\n",
					e.ID,
					time.Unix(int64(e.Timestamp), 0).Format("2006-01-02 15:04:05"),
					e.Source, e.Kind, charge, e.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "filter by source")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events")
	return cmd
}

func newMemoriesCmd() *cobra.Command {
	var (
		kind  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "memories <source>",
		Short: "List a daemon's memories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			memories, err := client.Recall(cmd.Context(),
				core.Source(args[0]), core.MemoryKind(kind), limit)
			if err != nil {
				return err
			}
			for _, m := range memories {
				printf(cmd, "%6d  %-10s x%-4d %s\n", m.ID, m.Kind, m.AccessCount, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "filter by memory kind")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum memories")
	return cmd
}

func newAdaptationsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "adaptations",
		Short: "List recent kernel adaptations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			adaptations, err := client.Store().Adaptations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, a := range adaptations {
				status := "ok"
				if !a.Success {
					status = "FAILED"
				}
				printf(cmd, "%6d  %s  %-24s %s -> %s  [%s]  %s\n",
					a.ID,
					time.Unix(int64(a.Timestamp), 0).Format("2006-01-02 15:04:05"),
					a.Parameter, a.OldValue, a.NewValue, status, a.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum adaptations")
	return cmd
}

func newDissonanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dissonance",
		Short: "Measure dissonance over the trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			d := client.Dissonance(cmd.Context())
			out, err := json.MarshalIndent(d, "", "  ")
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", out)
			return nil
		},
	}
}

func newReflectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reflect <prompt>",
		Short: "Ask the mirrors for a reflection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.Reflect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", result.Text)
			if result.State != validation.StateAccepted {
				printf(cmd, "[%s]\n", result.State)
			}
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <path> [path...]",
		Short: "Feed filesystem changes into the stream until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, logger, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			watcher, err := watch.New(client.Store(), logger)
			if err != nil {
				return err
			}
			defer watcher.Close()
			for _, path := range args {
				if err := watcher.Add(path); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := watcher.Run(ctx); err != ctx.Err() {
				return err
			}
			return nil
		},
	}
	return cmd
}

func newMonitorCmd() *cobra.Command {
	var intervalSec int
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Sample kernel state into the stream until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, logger, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			m := monitor.New(client.Store(),
				time.Duration(intervalSec)*time.Second, nil, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := m.Run(ctx); err != ctx.Err() {
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&intervalSec, "interval", 30, "sampling interval in seconds")
	return cmd
}
