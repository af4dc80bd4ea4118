package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/gramflow/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse stored comparison runs",
		Long: `Runs browses the record store: finished comparisons saved by the
compare command, the gateway or the MCP server. It needs a persistent
backend (redis, mongo or postgres) configured via store.backend,
GRAMFLOW_STORE or --store.`,
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	cmd.AddCommand(newRunsDeleteCmd())

	return cmd
}

func newRunsListCmd() *cobra.Command {
	var (
		configPath   string
		storeBackend string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(cmd, configPath, storeBackend, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&storeBackend, "store", "", "record store backend (redis, mongo, postgres)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 for all)")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	var (
		configPath   string
		storeBackend string
	)

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(cmd, configPath, storeBackend, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&storeBackend, "store", "", "record store backend (redis, mongo, postgres)")

	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	var (
		configPath   string
		storeBackend string
	)

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsDelete(cmd, configPath, storeBackend, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&storeBackend, "store", "", "record store backend (redis, mongo, postgres)")

	return cmd
}

func runRunsList(cmd *cobra.Command, configPath, storeBackend string, limit int) error {
	st, err := openRunsStore(configPath, storeBackend)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	recs, err := st.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "no stored runs")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGRAMMAR\tMODEL\tPHASE\tSTOP\tSTARTED\tDURATION")
	for _, rec := range recs {
		grammarName := rec.GrammarName
		if grammarName == "" {
			grammarName = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%dms\n",
			rec.ID, grammarName, rec.Model, rec.Phase, rec.StopReason,
			rec.StartedAt.Format("2006-01-02 15:04:05"), rec.DurationMS)
	}
	return w.Flush()
}

func runRunsShow(cmd *cobra.Command, configPath, storeBackend, id string) error {
	st, err := openRunsStore(configPath, storeBackend)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	rec, err := st.Load(cmd.Context(), id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runRunsDelete(cmd *cobra.Command, configPath, storeBackend, id string) error {
	st, err := openRunsStore(configPath, storeBackend)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	if err := st.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
	return nil
}

func openRunsStore(configPath, storeBackend string) (store.Store, error) {
	cfg, err := loadConfig(configPath, "", storeBackend)
	if err != nil {
		return nil, err
	}
	return openStore(cfg, true)
}
