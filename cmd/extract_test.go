package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/masterfile-cli/internal/config"
	"github.com/sells-group/masterfile-cli/internal/extract"
	"github.com/sells-group/masterfile-cli/internal/model"
)

func TestOutputPath(t *testing.T) {
	out, err := outputPath("eq.yaml", "")
	require.NoError(t, err)
	assert.Equal(t, "eq.yaml", out)

	out, err = outputPath("eq.xlsx", "filled.yaml")
	require.NoError(t, err)
	assert.Equal(t, "filled.yaml", out)

	_, err = outputPath("eq.XLSX", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--output is required")
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, model.RunStatusComplete, runStatus(extract.Result{}, nil))
	assert.Equal(t, model.RunStatusPartial, runStatus(extract.Result{Missing: []string{"V-001"}}, nil))
	assert.Equal(t, model.RunStatusCancelled, runStatus(extract.Result{}, eris.Wrap(context.Canceled, "extract: cancelled")))
	assert.Equal(t, model.RunStatusCancelled, runStatus(extract.Result{}, context.DeadlineExceeded))
	assert.Equal(t, model.RunStatusFailed, runStatus(extract.Result{}, errors.New("boom")))
}

func TestRunResult(t *testing.T) {
	res := extract.Result{
		AttemptsUsed:  2,
		Unextractable: []string{"T-101"},
		Passes:        []model.PassResult{{Attempt: 1}, {Attempt: 2}},
	}
	r := runResult(res, 5, 0.25, nil)
	assert.Equal(t, 2, r.AttemptsUsed)
	assert.Equal(t, 5, r.MaxRetries)
	assert.NotNil(t, r.Missing)
	assert.Empty(t, r.Missing)
	assert.Equal(t, []string{"T-101"}, r.Unextractable)
	assert.Len(t, r.Passes, 2)
	assert.InDelta(t, 0.25, r.TotalCost, 1e-9)
	assert.Empty(t, r.Error)

	r = runResult(res, 5, 0, errors.New("cancelled"))
	assert.Equal(t, "cancelled", r.Error)
}

func TestPricingRates(t *testing.T) {
	rates := pricingRates(config.PricingConfig{
		Gemini: map[string]config.ModelPricing{"gemini-2.5-flash": {Input: 0.3, Output: 2.5}},
	})
	assert.Nil(t, rates.Anthropic, "empty provider falls back to defaults in the calculator")
	assert.InDelta(t, 2.5, rates.Gemini["gemini-2.5-flash"].Output, 1e-9)
}

func TestFormatSummary(t *testing.T) {
	var buf bytes.Buffer
	formatSummary(&buf, "run-1", model.RunStatusPartial, &model.RunResult{
		AttemptsUsed:  5,
		MaxRetries:    5,
		Missing:       []string{"V-020", "C-301"},
		Unextractable: []string{"C-301"},
		TotalCost:     0.0421,
	}, "out.yaml")

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "5 of 5")
	assert.Contains(t, out, "$0.0421")
	assert.Contains(t, out, "V-020, C-301")
	assert.Contains(t, out, "No drawing:")
}
