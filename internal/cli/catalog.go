package cli

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/me/opsched/internal/loader"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv | s3://bucket/key>",
		Short: "Replace the server's order catalog with a descriptor file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loc, err := loader.ParseLocation(ctx, args[0])
			if err != nil {
				return err
			}
			rc, err := loc.Open(ctx)
			if err != nil {
				return fmt.Errorf("open %s: %w", loc, err)
			}
			defer rc.Close()
			return postImport(cmd, rc)
		},
	}
}

func postImport(cmd *cobra.Command, body io.Reader) error {
	resp, err := client.PostRaw("/api/v1/import", "text/csv", body)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	var res struct {
		Orders      int `json:"orders"`
		Descriptors int `json:"descriptors"`
	}
	if err := decode(resp, &res); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s operations in %s orders.\n", fmtCount(res.Descriptors), fmtCount(res.Orders))
	return nil
}

func newExportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export current orders as a descriptor CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := client.GetRaw("/api/v1/export")
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if outPath == "" || outPath == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			ctx := cmd.Context()
			loc, err := loader.ParseLocation(ctx, outPath)
			if err != nil {
				return err
			}
			if err := loc.Put(ctx, bytes.NewReader(data)); err != nil {
				return fmt.Errorf("write %s: %w", loc, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%s bytes).\n", loc, fmtCount(len(data)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file or s3://bucket/key (default stdout)")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		orders   int
		machines int
		prefix   string
		seed     uint64
		outPath  string
		doImport bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic order book",
		Long: "Generate a synthetic order book: orders ORD0001.. with 4-8 operations, each on 2-4 " +
			"machines of the pool. The same seed always gives the same book.",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool := make([]string, machines)
			for i := range pool {
				pool[i] = prefix + strconv.Itoa(i+1)
			}
			ds, err := loader.Generate(loader.GenerateOptions{Orders: orders, Machines: pool, Seed: seed})
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := loader.WriteDescriptors(&buf, ds); err != nil {
				return err
			}
			if doImport {
				return postImport(cmd, &buf)
			}
			if outPath == "" || outPath == "-" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			ctx := cmd.Context()
			loc, err := loader.ParseLocation(ctx, outPath)
			if err != nil {
				return err
			}
			if err := loc.Put(ctx, &buf); err != nil {
				return fmt.Errorf("write %s: %w", loc, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s operations for %s orders to %s.\n", fmtCount(len(ds)), fmtCount(orders), loc)
			return nil
		},
	}
	cmd.Flags().IntVar(&orders, "orders", 200, "Number of orders")
	cmd.Flags().IntVar(&machines, "machines", 45, "Machine pool size")
	cmd.Flags().StringVar(&prefix, "prefix", "M", "Machine id prefix")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file or s3://bucket/key (default stdout)")
	cmd.Flags().BoolVar(&doImport, "import", false, "Import the generated book into the server instead of writing it")
	return cmd
}
