package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/me/opsched/pkg/model"
	"github.com/spf13/cobra"
)

func secondsDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

func printPass(out io.Writer, p *model.PassResult) {
	fmt.Fprintf(out, "Pass %s at %s: %d entries, %d started, %d resumed, %d completed, %d halted\n",
		p.ID, p.At.Local().Format("15:04:05"), p.Plan.Len(), p.Started, p.Resumed, p.Completed, p.Halted)
	if len(p.Preempted) > 0 {
		fmt.Fprintf(out, "  Preempted: %s\n", strings.Join(p.Preempted, ", "))
	}
	if len(p.Unplaced) > 0 {
		fmt.Fprintf(out, "  Unplaced:  %d operations\n", len(p.Unplaced))
	}
}

func newPassCmd() *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "pass",
		Short: "Run a scheduling pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/schedule/pass", nil)
			if err != nil {
				return fmt.Errorf("run pass: %w", err)
			}
			var p model.PassResult
			if err := decode(resp, &p); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printPass(out, &p)
			if show {
				machines := make([]string, 0, len(p.Plan))
				for m := range p.Plan {
					machines = append(machines, m)
				}
				sort.Strings(machines)
				for _, m := range machines {
					printEntries(out, m, p.Plan[m])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "plan", false, "Print the plan per machine")
	return cmd
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "summary",
		Aliases: []string{"status"},
		Short:   "Show the shop-floor dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/summary")
			if err != nil {
				return fmt.Errorf("get summary: %w", err)
			}
			var s model.Summary
			if err := decode(resp, &s); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Orders:    %s\n", fmtCount(s.TotalOrders))
			fmt.Fprintf(out, "Progress:  %.1f%% mean\n", s.MeanProgress)
			fmt.Fprintf(out, "Remaining: %s\n", fmtDuration(s.TotalRemaining))
			fmt.Fprintf(out, "Machines:  %d busy, %d idle\n", s.BusyMachines, s.IdleMachines)
			for _, st := range []model.OrderState{model.OrderStateInProgress, model.OrderStatePending, model.OrderStateCompleted} {
				codes := s.ByState[st]
				line := strings.Join(codes, " ")
				if len(codes) > 10 {
					line = strings.Join(codes[:10], " ") + " ..."
				}
				fmt.Fprintf(out, "  %s %5s  %s\n", colorState(out, string(st)), strconv.Itoa(len(codes)), line)
			}
			if s.LastPass != nil {
				fmt.Fprintf(out, "Last pass: %s\n", fmtTime(s.LastPass.At))
			}
			return nil
		},
	}
}

func newEventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent scheduling events",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/events?limit=" + strconv.Itoa(limit))
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			var evs []model.Event
			if err := decode(resp, &evs); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(evs) == 0 {
				fmt.Fprintln(out, "No events.")
				return nil
			}
			for _, e := range evs {
				target := e.OrderCode
				if e.OperationID != "" {
					target += "/" + e.OperationID
				}
				if e.MachineID != "" {
					target += " on " + e.MachineID
				}
				fmt.Fprintf(out, "%s  %-20s  %s\n", e.At.Local().Format("2006-01-02 15:04:05"), e.Type, target)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum events to show (0 for all)")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop all scheduling state and reload orders from the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/reset", nil)
			if err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			var res struct {
				Orders int `json:"orders"`
			}
			if err := decode(resp, &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset: %s orders loaded.\n", fmtCount(res.Orders))
			return nil
		},
	}
}
