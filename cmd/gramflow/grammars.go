package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newGrammarsCmd() *cobra.Command {
	var (
		configPath string
		serverURL  string
		remote     bool
	)

	cmd := &cobra.Command{
		Use:   "grammars [name]",
		Short: "List grammars, or print one by name",
		Long: `Grammars lists the local library: the built-in grammars plus any
.grammar files in the configured grammar directory. With a name it
prints that grammar's spec. --remote asks the server for its built-in
grammars instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			if remote {
				return runGrammarsRemote(cmd, configPath, serverURL, name)
			}
			return runGrammarsLocal(cmd, configPath, name)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&serverURL, "server", "", "grammar server base URL")
	cmd.Flags().BoolVar(&remote, "remote", false, "list the server's grammars instead of the local library")

	return cmd
}

func runGrammarsLocal(cmd *cobra.Command, configPath, name string) error {
	cfg, err := loadConfig(configPath, "", "")
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if name != "" {
		g, err := lib.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprint(out, g.Spec)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTART\tDESCRIPTION")
	for _, g := range lib.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", g.Name, g.StartNonterminal, g.Description)
	}
	return w.Flush()
}

func runGrammarsRemote(cmd *cobra.Command, configPath, serverURL, name string) error {
	cfg, err := loadConfig(configPath, serverURL, "")
	if err != nil {
		return err
	}
	c := newClient(cfg)

	out := cmd.OutOrStdout()
	if name != "" {
		g, err := c.Grammar(cmd.Context(), name)
		if err != nil {
			return err
		}
		fmt.Fprint(out, g.Spec)
		return nil
	}

	infos, err := c.Grammars(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISPLAY\tDESCRIPTION")
	for _, g := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\n", g.Name, g.DisplayName, g.Short)
	}
	return w.Flush()
}
