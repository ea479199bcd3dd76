package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/me/opsched/pkg/model"
	"github.com/spf13/cobra"
)

func newOrdersCmd() *cobra.Command {
	var (
		state  string
		forced bool
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders with progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if state != "" {
				q.Set("state", state)
			}
			if cmd.Flags().Changed("forced") {
				q.Set("forced", strconv.FormatBool(forced))
			}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))

			resp, err := client.Get("/api/v1/orders/?" + q.Encode())
			if err != nil {
				return fmt.Errorf("list orders: %w", err)
			}
			var orders []model.OrderView
			if err := decode(resp, &orders); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(orders) == 0 {
				fmt.Fprintln(out, "No orders found.")
				return nil
			}

			fmt.Fprintf(out, "%-12s  %-11s  %5s  %4s  %8s  %-10s  %s\n", "ORDER", "STATE", "QTY", "OPS", "PROGRESS", "REMAINING", "FORCED")
			fmt.Fprintf(out, "%-12s  %-11s  %5s  %4s  %8s  %-10s  %s\n", "-----", "-----", "---", "---", "--------", "---------", "------")
			for _, o := range orders {
				f := ""
				if o.Forced {
					f = "yes"
				}
				fmt.Fprintf(out, "%-12s  %s  %5d  %4d  %7.1f%%  %-10s  %s\n",
					o.Code, colorState(out, string(o.State)), o.Quantity, len(o.Operations),
					o.Progress, fmtDuration(o.Remaining), f)
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %s shown)\n", len(orders), fmtCount(resp.Pagination.Total))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (PENDING, IN_PROGRESS, COMPLETED)")
	cmd.Flags().BoolVar(&forced, "forced", false, "Filter by priority override")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum orders to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Orders to skip")
	return cmd
}

func newOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order <code>",
		Short: "Show one order and its operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/orders/" + url.PathEscape(args[0]))
			if err != nil {
				return fmt.Errorf("get order: %w", err)
			}
			var o model.OrderView
			if err := decode(resp, &o); err != nil {
				return err
			}
			printOrder(cmd, &o)
			return nil
		},
	}
}

func printOrder(cmd *cobra.Command, o *model.OrderView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Order: %s\n", o.Code)
	fmt.Fprintf(out, "  State:     %s\n", colorState(out, string(o.State)))
	fmt.Fprintf(out, "  Quantity:  %d\n", o.Quantity)
	fmt.Fprintf(out, "  Progress:  %.1f%%\n", o.Progress)
	fmt.Fprintf(out, "  Remaining: %s (estimated total %s)\n", fmtDuration(o.Remaining), fmtDuration(o.EstimatedTotal))
	fmt.Fprintf(out, "  Created:   %s\n", fmtTime(o.CreatedAt))
	if o.Forced && o.ForcedAt != nil {
		fmt.Fprintf(out, "  Forced:    %s\n", fmtTime(*o.ForcedAt))
	}
	fmt.Fprintln(out, "  Operations:")
	for _, op := range o.Operations {
		where := op.AssignedMachine
		if op.Halt != nil {
			where = fmt.Sprintf("halted on %s at %.1f%%", op.Halt.Machine, op.Halt.Progress)
		}
		fmt.Fprintf(out, "    %2d. %-6s %-16s %s %s\n", op.Sequence, op.ID, op.Name, colorState(out, string(op.State)), where)
	}
}
