package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"upsell/internal/pkg/logger"
	"upsell/internal/service/promotion/domain"
	"upsell/internal/service/promotion/evaluator"
	"upsell/internal/service/promotion/infrastructure/rule"
)

var inputPath string

var rootCmd = &cobra.Command{
	Use:           "discount-function",
	Short:         "Evaluate upsell promotions for a cart",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Read a cart from stdin (or --input) and print the discount result",
	Args:  cobra.NoArgs,
	RunE:  runEvaluate,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the normalized promotion catalog of an input",
	Args:  cobra.NoArgs,
	RunE:  runCatalog,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&inputPath, "input", "i", "", "read input from file instead of stdin")
	rootCmd.AddCommand(runCmd, catalogCmd)
}

// runEvaluate 永远输出一个合法结果：信封解不出来时输出空结果，而不是以非零状态退出。
func runEvaluate(cmd *cobra.Command, _ []string) error {
	out := domain.EmptyResult()
	in, err := readInput(cmd)
	if err != nil {
		logger.L().Error().Err(err).Msg("invalid function input, returning empty result")
	} else {
		opts := []evaluator.Option{evaluator.WithLogger(*logger.L())}
		if rules, err := rule.NewCELEngine(); err == nil {
			opts = append(opts, evaluator.WithRuleEngine(rules))
		} else {
			logger.L().Warn().Err(err).Msg("rule engine unavailable, promotion conditions ignored")
		}
		out = evaluator.Evaluate(in, opts...)
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	in, err := readInput(cmd)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), evaluator.NormalizeCatalog(in.PromotionCatalog))
}

func readInput(cmd *cobra.Command) (domain.EvaluationInput, error) {
	var r io.Reader = cmd.InOrStdin()
	if inputPath != "" {
		f, err := os.Open(inputPath)
		if err != nil {
			return domain.EvaluationInput{}, errors.Wrap(err, "open input")
		}
		defer f.Close()
		r = f
	}
	var in domain.EvaluationInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return domain.EvaluationInput{}, errors.Wrap(err, "decode input")
	}
	return in, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}
