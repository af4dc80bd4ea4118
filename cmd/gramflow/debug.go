package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDebugCmd() *cobra.Command {
	var (
		configPath  string
		serverURL   string
		grammarFile string
		grammarName string
	)

	cmd := &cobra.Command{
		Use:   "debug <input>",
		Short: "Show the parser state for input under a grammar",
		Long: `Debug feeds input through a grammar on the server and prints the
parser state: whether the text is accepted, whether it already forms a
complete program, how many well-typed parses it admits, and which
continuations the grammar allows next. The grammar comes from --grammar
(a file, or - for stdin) or --grammar-name (the local library).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebug(cmd, configPath, serverURL, grammarFile, grammarName, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&serverURL, "server", "", "grammar server base URL")
	cmd.Flags().StringVarP(&grammarFile, "grammar", "g", "", "grammar spec file (- for stdin)")
	cmd.Flags().StringVar(&grammarName, "grammar-name", "", "named grammar from the local library")

	return cmd
}

func runDebug(cmd *cobra.Command, configPath, serverURL, grammarFile, grammarName, input string) error {
	cfg, err := loadConfig(configPath, serverURL, "")
	if err != nil {
		return err
	}
	spec, _, err := resolveGrammar(cmd, cfg, grammarFile, grammarName)
	if err != nil {
		return err
	}

	res, err := newClient(cfg).DebugGrammar(cmd.Context(), spec, input)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "text:       %q\n", res.CurrentText)
	fmt.Fprintf(out, "valid:      %v\n", res.Valid)
	fmt.Fprintf(out, "complete:   %v\n", res.IsComplete)
	fmt.Fprintf(out, "well-typed: %d\n", res.WellTypedTreeCount)
	if res.TypeError != "" {
		fmt.Fprintf(out, "type error: %s\n", res.TypeError)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(out, "error:      %s\n", e)
	}
	if len(res.Completions.Patterns) > 0 {
		fmt.Fprintln(out, "allowed next:")
		for i, p := range res.Completions.Patterns {
			if i < len(res.Completions.Examples) && res.Completions.Examples[i] != "" {
				fmt.Fprintf(out, "  %s (e.g. %q)\n", p, res.Completions.Examples[i])
			} else {
				fmt.Fprintf(out, "  %s\n", p)
			}
		}
	}
	return nil
}
