package cli

import (
	"fmt"
	"io"
	"net/url"

	"github.com/me/opsched/pkg/model"
	"github.com/spf13/cobra"
)

func newMachinesCmd() *cobra.Command {
	var busyOnly bool
	cmd := &cobra.Command{
		Use:   "machines",
		Short: "Show the status of every machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/machines/")
			if err != nil {
				return fmt.Errorf("list machines: %w", err)
			}
			var ms []model.MachineStatus
			if err := decode(resp, &ms); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-8s  %-11s  %-20s  %8s  %-10s  %s\n", "MACHINE", "STATE", "CURRENT", "PROGRESS", "REMAINING", "NEXT")
			fmt.Fprintf(out, "%-8s  %-11s  %-20s  %8s  %-10s  %s\n", "-------", "-----", "-------", "--------", "---------", "----")
			for _, m := range ms {
				if busyOnly && m.State != model.MachineStateBusy {
					continue
				}
				current, progress, remaining := "-", "", ""
				if m.Current != nil {
					current = m.Current.OrderCode + "/" + m.Current.OperationID
					progress = fmt.Sprintf("%7.1f%%", m.Progress)
					remaining = fmtDuration(m.Remaining)
				}
				next := "-"
				if len(m.Upcoming) > 0 {
					next = m.Upcoming[0].OrderCode + "/" + m.Upcoming[0].OperationID
				}
				fmt.Fprintf(out, "%-8s  %s  %-20s  %8s  %-10s  %s\n",
					m.MachineID, colorState(out, string(m.State)), current, progress, remaining, next)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&busyOnly, "busy", false, "Only show busy machines")
	return cmd
}

func newMachineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "machine <id>",
		Short: "Show one machine with its current and upcoming work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/machines/" + url.PathEscape(args[0]))
			if err != nil {
				return fmt.Errorf("get machine: %w", err)
			}
			var m model.MachineStatus
			if err := decode(resp, &m); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Machine: %s\n", m.MachineID)
			fmt.Fprintf(out, "  State:   %s\n", colorState(out, string(m.State)))
			if m.Current != nil {
				fmt.Fprintf(out, "  Current: %s/%s %s\n", m.Current.OrderCode, m.Current.OperationID, m.Current.OperationName)
				fmt.Fprintf(out, "           %.1f%% done, %s elapsed, %s remaining\n",
					m.Progress, fmtDuration(m.Elapsed), fmtDuration(m.Remaining))
			}
			printEntries(out, "Upcoming", m.Upcoming)
			printEntries(out, "Plan", m.FullPlan)
			return nil
		},
	}
}

func printEntries(out io.Writer, title string, entries []model.ScheduleEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(out, "  %s:\n", title)
	for _, e := range entries {
		mark := ""
		if e.Forced {
			mark = " [forced]"
		}
		fmt.Fprintf(out, "    - %s/%s %-6s %s -> %s (%s)%s\n",
			e.OrderCode, e.OperationID, e.Kind,
			e.Start.Local().Format("01-02 15:04"), e.End.Local().Format("01-02 15:04"),
			fmtDuration(e.Duration()), mark)
	}
}
