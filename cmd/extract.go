package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/masterfile-cli/internal/config"
	"github.com/sells-group/masterfile-cli/internal/cost"
	"github.com/sells-group/masterfile-cli/internal/extract"
	"github.com/sells-group/masterfile-cli/internal/imageindex"
	"github.com/sells-group/masterfile-cli/internal/masterfile"
	"github.com/sells-group/masterfile-cli/internal/model"
	"github.com/sells-group/masterfile-cli/internal/policy"
	"github.com/sells-group/masterfile-cli/internal/resilience"
	"github.com/sells-group/masterfile-cli/internal/store"
	"github.com/sells-group/masterfile-cli/internal/vision"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract equipment fields from drawings",
	Long:  "Loads the equipment masterfile, reads each equipment's drawings with the configured vision model and writes the filled masterfile back out.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		sheet, _ := cmd.Flags().GetString("sheet")
		targets, _ := cmd.Flags().GetStringSlice("equipment")
		if cmd.Flags().Changed("max-retries") {
			cfg.Extract.MaxRetries, _ = cmd.Flags().GetInt("max-retries")
		}
		if dir, _ := cmd.Flags().GetString("images"); dir != "" {
			cfg.Images.Dir = dir
		}

		if err := cfg.Validate("extract"); err != nil {
			return err
		}
		out, err := outputPath(input, output)
		if err != nil {
			return err
		}

		equipment, err := loadEquipment(input, sheet)
		if err != nil {
			return err
		}
		byNumber := masterfile.Index(equipment)

		policies, err := policy.Load(cfg.Policy.File)
		if err != nil {
			return err
		}
		images, err := imageindex.Open(cfg.Images.Dir, cfg.Images.Extensions)
		if err != nil {
			return err
		}

		meter := &vision.Meter{}
		client, err := vision.New(ctx, cfg.Vision, cost.NewCalculator(pricingRates(cfg.Pricing)), meter)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if len(targets) == 0 {
			targets = byNumber.Numbers()
		}
		run, err := st.CreateRun(ctx, targets)
		if err != nil {
			return eris.Wrap(err, "extract: create run")
		}
		log := zap.L().With(zap.String("run_id", run.ID))

		b := cfg.Extract.Backoff
		retry := resilience.FromBackoffConfig(cfg.Extract.MaxRetries, b.InitialMs, b.MaxMs, b.Multiplier, b.Jitter)
		ex := extract.New(policies, images, client, extract.Options{
			MaxRetries: cfg.Extract.MaxRetries,
			Retry:      retry,
			OnPass: func(p model.PassResult) {
				if err := st.RecordPass(ctx, run.ID, p); err != nil {
					log.Warn("extract: record pass failed", zap.Error(err))
				}
			},
		})

		res, runErr := ex.ExtractList(ctx, byNumber, targets)
		_, _, _, usd := meter.Snapshot()
		result := runResult(res, cfg.Extract.MaxRetries, usd, runErr)
		status := runStatus(res, runErr)

		// The run record is written even when the context is cancelled.
		if err := st.CompleteRun(context.WithoutCancel(ctx), run.ID, status, result); err != nil {
			log.Error("extract: complete run failed", zap.Error(err))
		}
		if runErr != nil && status == model.RunStatusFailed {
			return runErr
		}

		if err := masterfile.SaveFile(out, equipment); err != nil {
			return err
		}
		formatSummary(os.Stdout, run.ID, status, result, out)
		return runErr
	},
}

func init() {
	extractCmd.Flags().String("input", "", "equipment masterfile (.yaml, .json or .xlsx)")
	extractCmd.Flags().String("output", "", "where to write the filled masterfile (defaults to the input for .yaml/.json)")
	extractCmd.Flags().String("sheet", "", "sheet name when the input is .xlsx (defaults to the first sheet)")
	extractCmd.Flags().StringSlice("equipment", nil, "equipment numbers to extract (defaults to all)")
	extractCmd.Flags().Int("max-retries", extract.DefaultMaxRetries, "maximum extraction passes")
	extractCmd.Flags().String("images", "", "drawing image directory (overrides images.dir)")
	_ = extractCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(extractCmd)
}

// loadEquipment picks the reader by file extension.
func loadEquipment(path, sheet string) ([]*model.Equipment, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return masterfile.LoadXLSX(path, sheet)
	}
	return masterfile.LoadFile(path)
}

// outputPath resolves where results go. Spreadsheets are never overwritten.
func outputPath(input, output string) (string, error) {
	if output != "" {
		return output, nil
	}
	if strings.EqualFold(filepath.Ext(input), ".xlsx") {
		return "", eris.New("extract: --output is required when the input is .xlsx")
	}
	return input, nil
}

func pricingRates(p config.PricingConfig) cost.Rates {
	conv := func(in map[string]config.ModelPricing) map[string]cost.ModelRate {
		if len(in) == 0 {
			return nil
		}
		out := make(map[string]cost.ModelRate, len(in))
		for k, v := range in {
			out[k] = cost.ModelRate{Input: v.Input, Output: v.Output}
		}
		return out
	}
	return cost.Rates{Anthropic: conv(p.Anthropic), Gemini: conv(p.Gemini)}
}

func runStatus(res extract.Result, err error) model.RunStatus {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.RunStatusCancelled
	case err != nil:
		return model.RunStatusFailed
	case res.Converged():
		return model.RunStatusComplete
	default:
		return model.RunStatusPartial
	}
}

func runResult(res extract.Result, maxRetries int, usd float64, err error) *model.RunResult {
	r := &model.RunResult{
		AttemptsUsed:  res.AttemptsUsed,
		MaxRetries:    maxRetries,
		Missing:       res.Missing,
		Unextractable: res.Unextractable,
		Passes:        res.Passes,
		TotalCost:     usd,
	}
	if r.Missing == nil {
		r.Missing = []string{}
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// formatSummary writes the outcome of a run to w.
func formatSummary(out io.Writer, runID string, status model.RunStatus, r *model.RunResult, path string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", runID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", status)
	_, _ = fmt.Fprintf(w, "Attempts:\t%d of %d\n", r.AttemptsUsed, r.MaxRetries)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f\n", r.TotalCost)
	_, _ = fmt.Fprintf(w, "Output:\t%s\n", path)
	if len(r.Unextractable) > 0 {
		_, _ = fmt.Fprintf(w, "No drawing:\t%s\n", strings.Join(r.Unextractable, ", "))
	}
	if len(r.Missing) > 0 {
		_, _ = fmt.Fprintf(w, "Still incomplete:\t%s\n", strings.Join(r.Missing, ", "))
	}
	_ = w.Flush()
}
