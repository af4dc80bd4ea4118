package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var (
		configPath string
		serverURL  string
	)

	cmd := &cobra.Command{
		Use:   "validate [grammar-file]",
		Short: "Validate a grammar spec against the server",
		Long: `Validate sends a grammar spec to the server's validator and prints the
result. The spec is read from the given file, or from stdin when the
file is omitted or -. On success the start nonterminal is reported;
on failure each grammar error is listed and the command exits nonzero.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return runValidate(cmd, configPath, serverURL, file)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&serverURL, "server", "", "grammar server base URL")

	return cmd
}

func runValidate(cmd *cobra.Command, configPath, serverURL, file string) error {
	cfg, err := loadConfig(configPath, serverURL, "")
	if err != nil {
		return err
	}
	spec, err := readSpec(cmd, file)
	if err != nil {
		return err
	}

	v, err := newClient(cfg).ValidateGrammar(cmd.Context(), spec)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !v.Valid {
		fmt.Fprintln(out, "grammar is invalid:")
		for _, e := range v.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
		return errors.New("grammar failed validation")
	}
	if v.StartNonterminal != "" {
		fmt.Fprintf(out, "grammar ok (start nonterminal: %s)\n", v.StartNonterminal)
	} else {
		fmt.Fprintln(out, "grammar ok")
	}
	return nil
}
