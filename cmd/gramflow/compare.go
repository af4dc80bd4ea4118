package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/gramflow/compare"
	"github.com/sweetpotato0/gramflow/config"
	gfclaude "github.com/sweetpotato0/gramflow/contrib/backend/claude"
	gfopenai "github.com/sweetpotato0/gramflow/contrib/backend/openai"
	"github.com/sweetpotato0/gramflow/middleware"
	"github.com/sweetpotato0/gramflow/middleware/defaults"
	"github.com/sweetpotato0/gramflow/middleware/validator"
	"github.com/sweetpotato0/gramflow/tokenizer"
)

type compareFlags struct {
	configPath     string
	serverURL      string
	storeBackend   string
	grammarFile    string
	grammarName    string
	model          string
	maxTokens      int
	grammarTokens  int
	topK           int
	temperature    float64
	initial        string
	stopOnComplete bool
	maskWhitespace bool
	freeSource     string
	jsonOut        bool
}

func newCompareCmd() *cobra.Command {
	var flags compareFlags

	cmd := &cobra.Command{
		Use:   "compare <prompt>",
		Short: "Run an unconstrained vs grammar-constrained comparison",
		Long: `Compare runs both generation passes for the prompt and streams them to
the terminal: the free pass first, then the grammar-constrained pass,
followed by a diagnostic of where the free output left the language.

The constrained pass always runs on the grammar server. The free pass
can instead come from a hosted model with --free-source openai (needs
OPENAI_API_KEY) or --free-source claude (needs ANTHROPIC_API_KEY).

With a persistent store configured the finished run is saved and can be
browsed later with the runs command. --json suppresses the live view
and prints the terminal snapshot as JSON instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, flags, args[0])
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&flags.serverURL, "server", "", "grammar server base URL")
	cmd.Flags().StringVar(&flags.storeBackend, "store", "", "record store backend (memory, redis, mongo, postgres)")
	cmd.Flags().StringVarP(&flags.grammarFile, "grammar", "g", "", "grammar spec file (- for stdin)")
	cmd.Flags().StringVar(&flags.grammarName, "grammar-name", "", "named grammar from the local library")
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "generation model")
	cmd.Flags().IntVar(&flags.maxTokens, "max-tokens", 0, "token budget per pass")
	cmd.Flags().IntVar(&flags.grammarTokens, "grammar-tokens", 0, "token budget for the constrained portion (defaults to --max-tokens)")
	cmd.Flags().IntVar(&flags.topK, "top-k", 0, "top-k sampling cutoff for the free pass")
	cmd.Flags().Float64Var(&flags.temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().StringVar(&flags.initial, "initial", "", "constrained output to continue from")
	cmd.Flags().BoolVar(&flags.stopOnComplete, "stop-on-complete", false, "end the constrained pass at the first complete program")
	cmd.Flags().BoolVar(&flags.maskWhitespace, "mask-whitespace", true, "ban whitespace-only continuations in the constrained pass")
	cmd.Flags().StringVar(&flags.freeSource, "free-source", "", "free pass source: openai or claude (default grammar server)")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "print the final record as JSON instead of streaming")

	return cmd
}

func runCompare(cmd *cobra.Command, flags compareFlags, prompt string) error {
	cfg, err := loadConfig(flags.configPath, flags.serverURL, flags.storeBackend)
	if err != nil {
		return err
	}

	gen := cfg.Generation
	if flags.model != "" {
		gen.Model = flags.model
	}
	if flags.maxTokens > 0 {
		gen.MaxTokens = flags.maxTokens
	}
	if flags.grammarTokens > 0 {
		gen.GrammarTokens = flags.grammarTokens
	} else if flags.maxTokens > 0 {
		gen.GrammarTokens = flags.maxTokens
	}
	if flags.topK > 0 {
		gen.TopK = flags.topK
	}
	if flags.temperature > 0 {
		gen.Temperature = flags.temperature
	}
	if err := config.ValidateGenerationConfig(gen.Model, gen.MaxTokens, gen.TopK, gen.Temperature); err != nil {
		return fmt.Errorf("invalid generation settings: %w", err)
	}

	stopOnComplete := gen.StopOnComplete
	if cmd.Flags().Changed("stop-on-complete") {
		stopOnComplete = flags.stopOnComplete
	}
	maskWhitespace := gen.MaskWhitespaceOn()
	if cmd.Flags().Changed("mask-whitespace") {
		maskWhitespace = flags.maskWhitespace
	}

	spec, name, err := resolveGrammar(cmd, cfg, flags.grammarFile, flags.grammarName)
	if err != nil {
		return err
	}

	req := compare.StartRequest{
		GrammarName:    name,
		Grammar:        spec,
		Prompt:         prompt,
		Initial:        flags.initial,
		Model:          gen.Model,
		MaxTokens:      gen.MaxTokens,
		GrammarTokens:  gen.GrammarTokens,
		TopK:           gen.TopK,
		Temperature:    gen.Temperature,
		StopOnComplete: stopOnComplete,
		MaskWhitespace: maskWhitespace,
	}

	opts := []compare.Option{compare.WithTokenizer(tokenizer.NewHeuristic())}

	switch flags.freeSource {
	case "":
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return errors.New("--free-source openai requires OPENAI_API_KEY")
		}
		opts = append(opts, compare.WithSource(gfopenai.New(gfopenai.DefaultConfig(key))))
	case "claude":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return errors.New("--free-source claude requires ANTHROPIC_API_KEY")
		}
		opts = append(opts, compare.WithSource(gfclaude.New(gfclaude.DefaultConfig(key))))
	default:
		return fmt.Errorf("unknown free source %q (want openai or claude)", flags.freeSource)
	}

	st, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close(context.Background())
		opts = append(opts, compare.WithStore(st))
	}

	backend := compare.NewServerBackend(newClient(cfg))
	chain := middleware.NewChain(
		defaults.New(cfg.Generation.Model, cfg.Generation.MaxTokens, cfg.Generation.GrammarTokens),
		validator.New(),
	)
	return chain.Execute(middleware.NewContext(cmd.Context(), &req), func(mctx *middleware.Context) error {
		if flags.jsonOut {
			return printRunJSON(cmd, backend, *mctx.Request, opts)
		}
		return printRunLive(cmd, backend, *mctx.Request, opts)
	})
}

// printRunJSON runs the comparison to completion and prints the terminal
// snapshot. An errored run still prints its snapshot before the error is
// returned, so scripts see what was generated up to the failure.
func printRunJSON(cmd *cobra.Command, backend compare.Backend, req compare.StartRequest, opts []compare.Option) error {
	snap, err := compare.Collect(cmd.Context(), backend, req, opts...)
	if snap.Terminal() {
		data, merr := json.MarshalIndent(snap, "", "  ")
		if merr != nil {
			return merr
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}
	return err
}

// printRunLive streams both passes to the terminal as they generate,
// then prints the diagnostic and a one-line summary.
func printRunLive(cmd *cobra.Command, backend compare.Backend, req compare.StartRequest, opts []compare.Option) error {
	out := cmd.OutOrStdout()

	var (
		final      compare.Snapshot
		phase      compare.Phase
		uncPrinted int
		conPrinted int
		diag       *compare.Diagnostic
	)
	for snap, err := range compare.Updates(cmd.Context(), backend, req, opts...) {
		if err != nil {
			return err
		}
		final = snap
		if snap.Phase != phase {
			switch snap.Phase {
			case compare.PhaseRunningUnconstrained:
				fmt.Fprintln(out, "-- unconstrained --")
			case compare.PhaseRunningConstrained:
				fmt.Fprintln(out, "\n\n-- constrained --")
			}
			phase = snap.Phase
		}
		if n := len(snap.Unconstrained); n > uncPrinted {
			fmt.Fprint(out, snap.Unconstrained[uncPrinted:])
			uncPrinted = n
		}
		if n := len(snap.Constrained); n > conPrinted {
			fmt.Fprint(out, snap.Constrained[conPrinted:])
			conPrinted = n
		}
		if diag == nil && snap.Diagnostic != nil {
			diag = snap.Diagnostic
		}
	}
	fmt.Fprintln(out)

	if diag != nil {
		fmt.Fprintln(out, "\n-- free output vs grammar --")
		if diag.Error != "" {
			fmt.Fprintf(out, "analysis failed: %s\n", diag.Error)
		} else {
			fmt.Fprintf(out, "in language: %v, complete: %v, well-typed parses: %d\n",
				diag.Valid, diag.IsComplete, diag.WellTypedTreeCount)
			if diag.TypeError != "" {
				fmt.Fprintf(out, "type error: %s\n", diag.TypeError)
			}
		}
	}

	fmt.Fprintln(out)
	switch final.Phase {
	case compare.PhaseDone:
		elapsed := final.FinishedAt.Sub(final.StartedAt).Round(time.Millisecond)
		fmt.Fprintf(out, "done: stop=%s complete=%v elapsed=%s\n", final.StopReason, final.IsComplete, elapsed)
	case compare.PhaseStopped:
		fmt.Fprintln(out, "stopped")
	case compare.PhaseErrored:
		return errors.New(final.Err)
	}
	return nil
}
