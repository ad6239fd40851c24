package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"scribe/logger"
	"scribe/types"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// suggestCmd runs one suggestion request outside the editor
var suggestCmd = &cobra.Command{
	Use:   "suggest [text]",
	Short: "Print the continuation and replacements for a text",
	Long: `Sends the text (or stdin when no argument is given) to the completion
service as the context before the caret and prints the suggestion as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSuggest,
}

var correctCmd = &cobra.Command{
	Use:   "correct <word>",
	Short: "Print the corrected spelling of a word",
	Args:  cobra.ExactArgs(1),
	RunE:  runCorrect,
}

var actionCmd = &cobra.Command{
	Use:   "action <summarize|grammar|rephrase> [text]",
	Short: "Run an AI text action on a text",
	Long: `Rewrites the text (or stdin when no text argument is given) with one of
the text actions and prints the result.`,
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{string(types.ActionSummarize), string(types.ActionGrammar), string(types.ActionRephrase)},
	RunE:      runAction,
}

// inputText returns the argument at index i, or stdin when it is absent
func inputText(args []string, i int) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// commandContext returns a context cancelled on interrupt
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.SetGlobalLevel(logger.ParseLogLevel(cfg.LogLevel))

	before, err := inputText(args, 0)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	p := newProvider(cfg)
	req := &types.SuggestionRequest{Context: before}
	s := &types.Suggestion{}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.EnableContinuations {
		g.Go(func() error {
			cont, err := p.FetchContinuation(gctx, req)
			s.Continuation = cont
			return err
		})
	}
	if cfg.EnableReplacements {
		g.Go(func() error {
			repl, err := p.FetchReplacements(gctx, req)
			s.Replacements = repl
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func runCorrect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.SetGlobalLevel(logger.ParseLogLevel(cfg.LogLevel))

	ctx, cancel := commandContext(cmd)
	defer cancel()

	corrected, err := newProvider(cfg).CorrectWord(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), corrected)
	return nil
}

func runAction(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.SetGlobalLevel(logger.ParseLogLevel(cfg.LogLevel))

	text, err := inputText(args, 1)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	action := types.ActionType(args[0])
	result, err := newProvider(cfg).RunAction(ctx, action, text)
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", action, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}
