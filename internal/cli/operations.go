package cli

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/me/opsched/pkg/model"
	"github.com/spf13/cobra"
)

func operationPath(code, opID, action string) string {
	return "/api/v1/orders/" + url.PathEscape(code) + "/operations/" + url.PathEscape(opID) + "/" + action
}

type operationResult struct {
	Action string            `json:"action"`
	Halt   *model.HaltRecord `json:"halt"`
	Order  *model.OrderView  `json:"order"`
}

func runOperation(cmd *cobra.Command, code, opID, action string, body any) error {
	resp, err := client.Post(operationPath(code, opID, action), body)
	if err != nil {
		return fmt.Errorf("%s %s/%s: %w", action, code, opID, err)
	}
	var res operationResult
	if err := decode(resp, &res); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch {
	case res.Action == "unchanged":
		fmt.Fprintf(out, "Operation %s/%s was not running; nothing to halt.\n", code, opID)
	case res.Halt != nil:
		fmt.Fprintf(out, "Operation %s/%s halted on %s after %s (%.1f%%).\n",
			code, opID, res.Halt.Machine, fmtDuration(res.Halt.Elapsed), res.Halt.Progress)
	default:
		fmt.Fprintf(out, "Operation %s/%s %s.\n", code, opID, res.Action)
	}
	if res.Order != nil {
		fmt.Fprintf(out, "Order %s: %s, %.1f%% done\n", res.Order.Code, res.Order.State, res.Order.Progress)
	}
	return nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <order> <operation> <machine>",
		Short: "Start an operation on a machine",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, args[0], args[1], "start", model.StartOperationRequest{MachineID: args[2]})
		},
	}
}

func newCompleteCmd() *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:   "complete <order> <operation>",
		Short: "Complete a running operation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req model.CompleteOperationRequest
			if cmd.Flags().Changed("quantity") {
				req.CompletedQuantity = &qty
			}
			return runOperation(cmd, args[0], args[1], "complete", req)
		},
	}
	cmd.Flags().IntVar(&qty, "quantity", 0, "Completed quantity (default: the order quantity)")
	return cmd
}

func newHaltCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "halt <order> <operation>",
		Short: "Halt a running operation, keeping its progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, args[0], args[1], "halt", nil)
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <order> <operation>",
		Short: "Resume a halted operation on the machine it was halted on",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, args[0], args[1], "resume", nil)
		},
	}
}

func runForce(cmd *cobra.Command, code, action string) error {
	resp, err := client.Post("/api/v1/orders/"+url.PathEscape(code)+"/"+action, nil)
	if err != nil {
		return fmt.Errorf("%s %s: %w", action, code, err)
	}
	var res model.ForceResponse
	if err := decode(resp, &res); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if res.Forced {
		fmt.Fprintf(out, "Order %s forced.\n", code)
	} else {
		fmt.Fprintf(out, "Order %s unforced.\n", code)
	}
	if res.Pass != nil {
		printPass(out, res.Pass)
	}
	return nil
}

func newForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <order>",
		Short: "Give a pending order top priority, preempting other work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForce(cmd, args[0], "force")
		},
	}
}

func newUnforceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unforce <order>",
		Short: "Remove an order's priority override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForce(cmd, args[0], "unforce")
		},
	}
}

func newEstimateCmd() *cobra.Command {
	var selections []string
	cmd := &cobra.Command{
		Use:   "estimate <order>",
		Short: "Estimate an order's total processing time",
		Long:  "Estimate an order's total processing time. Operations without --select use their fastest machine.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := model.EstimateRequest{}
			for _, s := range selections {
				op, m, ok := strings.Cut(s, "=")
				if !ok || op == "" || m == "" {
					return fmt.Errorf("invalid --select %q, want OPERATION=MACHINE", s)
				}
				if req.Selection == nil {
					req.Selection = map[string]string{}
				}
				req.Selection[op] = m
			}
			resp, err := client.Post("/api/v1/orders/"+url.PathEscape(args[0])+"/estimate", req)
			if err != nil {
				return fmt.Errorf("estimate %s: %w", args[0], err)
			}
			var res struct {
				Total int64 `json:"total_seconds"`
			}
			if err := decode(resp, &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Order %s: %s (%s seconds)\n",
				args[0], fmtDuration(secondsDuration(res.Total)), fmtCount(int(res.Total)))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&selections, "select", nil, "Machine for an operation, as OPERATION=MACHINE (repeatable)")
	return cmd
}
