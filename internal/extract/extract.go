// Package extract drives the bounded retry loop that fills equipment fields
// from drawing images.
//
// Each pass runs lookup, prompt, vision call, parse and merge strictly in
// sequence for one equipment before moving to the next. The first pass
// covers every target; later passes cover only targets still missing.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/masterfile-cli/internal/imageindex"
	"github.com/sells-group/masterfile-cli/internal/merge"
	"github.com/sells-group/masterfile-cli/internal/model"
	"github.com/sells-group/masterfile-cli/internal/parse"
	"github.com/sells-group/masterfile-cli/internal/policy"
	"github.com/sells-group/masterfile-cli/internal/prompt"
	"github.com/sells-group/masterfile-cli/internal/resilience"
	"github.com/sells-group/masterfile-cli/internal/vision"
)

// DefaultMaxRetries bounds the number of passes.
const DefaultMaxRetries = 5

// Options tunes an Extractor.
type Options struct {
	// MaxRetries is the number of passes. Zero or less means DefaultMaxRetries.
	MaxRetries int

	// Retry governs transient vision failures within one call. MaxAttempts
	// defaults to MaxRetries.
	Retry resilience.RetryConfig

	// OnPass observes each finished pass.
	OnPass func(model.PassResult)
}

// Result is the outcome of one extraction invocation.
type Result struct {
	// Missing lists targets still lacking required fields, in target order.
	Missing []string
	// AttemptsUsed counts passes that tried at least one equipment with images.
	AttemptsUsed int
	// Unextractable lists targets without any candidate image.
	Unextractable []string
	Passes        []model.PassResult
}

// Converged reports whether every target is complete.
func (r Result) Converged() bool { return len(r.Missing) == 0 }

// Extractor is the extraction orchestrator. It holds no per-run state, so
// one Extractor may serve several sequential runs.
type Extractor struct {
	policies *policy.Registry
	images   imageindex.Index
	client   vision.Client
	merger   *merge.Merger
	opts     Options
}

// New returns an Extractor.
func New(policies *policy.Registry, images imageindex.Index, client vision.Client, opts Options) *Extractor {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = opts.MaxRetries
	}
	return &Extractor{
		policies: policies,
		images:   images,
		client:   client,
		merger:   merge.New(policies),
		opts:     opts,
	}
}

// ExtractOne runs the retry loop for a single equipment.
func (e *Extractor) ExtractOne(ctx context.Context, equipment model.EquipmentMap, number string) (Result, error) {
	return e.ExtractList(ctx, equipment, []string{number})
}

// ExtractAll runs the retry loop for every equipment in the map, in
// equipment-number order.
func (e *Extractor) ExtractAll(ctx context.Context, equipment model.EquipmentMap) (Result, error) {
	return e.ExtractList(ctx, equipment, equipment.Numbers())
}

// ExtractList runs the retry loop for the given equipment numbers. Fields
// are filled in place. Per-equipment failures never surface as errors; only
// unknown targets and cancellation do. On cancellation the partial result
// is returned along with the error.
func (e *Extractor) ExtractList(ctx context.Context, equipment model.EquipmentMap, numbers []string) (Result, error) {
	targets, err := dedupe(equipment, numbers)
	if err != nil {
		return Result{}, err
	}

	missing := e.merger.Recompute(equipment, targets)
	unextractable := model.NewMissingSet()
	var res Result

	zap.L().Info("extract: starting",
		zap.Int("targets", len(targets)),
		zap.Int("incomplete", len(missing)),
		zap.Int("max_retries", e.opts.MaxRetries),
	)

	for attempt := 1; attempt <= e.opts.MaxRetries; attempt++ {
		pending := targets
		if attempt > 1 {
			pending = nil
			for _, n := range missing.Restrict(targets) {
				if !unextractable.Has(n) {
					pending = append(pending, n)
				}
			}
		}
		if len(pending) == 0 {
			break
		}

		start := time.Now()
		pass := model.PassResult{Attempt: attempt, Targets: pending}
		extracted := make(map[string]parse.Result, len(pending))
		tried := false

		var cancelErr error
		for _, number := range pending {
			if err := ctx.Err(); err != nil {
				cancelErr = err
				break
			}

			out := e.extractEquipment(ctx, equipment[number], attempt)
			switch out.kind {
			case outcomeNoImages:
				unextractable.Add(number)
				res.Unextractable = append(res.Unextractable, number)
				continue
			case outcomeExtracted:
				pass.Extracted = append(pass.Extracted, number)
			default:
				pass.Failed = append(pass.Failed, number)
			}
			tried = true
			extracted[number] = out.result
		}

		missing = e.merger.Merge(equipment, extracted, missing)
		if tried {
			res.AttemptsUsed++
		}
		pass.Missing = missing.Restrict(pending)
		pass.DurationMs = time.Since(start).Milliseconds()
		res.Passes = append(res.Passes, pass)
		if e.opts.OnPass != nil {
			e.opts.OnPass(pass)
		}

		zap.L().Info("extract: pass finished",
			zap.Int("attempt", attempt),
			zap.Int("targets", len(pending)),
			zap.Int("extracted", len(pass.Extracted)),
			zap.Int("failed", len(pass.Failed)),
			zap.Int("still_missing", len(missing.Restrict(targets))),
		)

		if cancelErr != nil {
			res.Missing = missing.Restrict(targets)
			return res, eris.Wrap(cancelErr, "extract: cancelled")
		}
		if len(missing.Restrict(targets)) == 0 {
			break
		}
	}

	res.Missing = missing.Restrict(targets)
	for _, n := range res.Missing {
		zap.L().Warn("extract: equipment still incomplete",
			zap.String("equipment", n),
			zap.Int("attempts", res.AttemptsUsed),
			zap.Bool("unextractable", unextractable.Has(n)),
		)
	}
	return res, nil
}

type outcomeKind int

const (
	outcomeFailed outcomeKind = iota
	outcomeNoImages
	outcomeExtracted
)

type outcome struct {
	kind   outcomeKind
	result parse.Result
}

// extractEquipment tries each candidate image in order and returns the first
// parse result carrying data. Errors and panics degrade to a failed outcome.
func (e *Extractor) extractEquipment(ctx context.Context, eq *model.Equipment, attempt int) (out outcome) {
	log := zap.L().With(
		zap.String("equipment", eq.EquipmentNumber),
		zap.Int("attempt", attempt),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("extract: recovered from panic", zap.Any("panic", r))
			out = outcome{kind: outcomeFailed}
		}
	}()

	images, err := e.images.Lookup(eq.PMTNumber)
	if err != nil {
		log.Error("extract: image lookup failed", zap.Error(err))
		return outcome{kind: outcomeFailed}
	}
	if len(images) == 0 {
		log.Warn("extract: no drawing found, equipment is unextractable",
			zap.String("pmt_number", eq.PMTNumber),
		)
		return outcome{kind: outcomeNoImages}
	}

	pol := e.policies.For(eq.EquipmentNumber)
	components := eq.ComponentNames()
	text := prompt.Build(eq.EquipmentNumber, components, pol)

	for i, img := range images {
		ilog := log.With(zap.String("image", img.Path))

		raw, err := e.generate(ctx, eq.EquipmentNumber, img, text, ilog)
		if err != nil {
			ilog.Error("extract: vision call failed", zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		parsed := parse.Parse(raw, components, pol)
		if parsed.HasData() {
			ilog.Info("extract: fields extracted",
				zap.Int("fields", parsed.FieldCount()),
				zap.Int("image_index", i),
			)
			return outcome{kind: outcomeExtracted, result: parsed}
		}
		ilog.Warn("extract: image yielded no data")
	}

	log.Warn("extract: no image yielded data", zap.Int("images", len(images)))
	return outcome{kind: outcomeFailed}
}

func (e *Extractor) generate(ctx context.Context, number string, img imageindex.Image, text string, log *zap.Logger) (string, error) {
	data, err := img.Read()
	if err != nil {
		return "", err
	}

	cfg := e.opts.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("vision", "generate",
			zap.String("equipment", number),
			zap.String("image", img.Path),
		)
	}
	req := vision.Request{Equipment: number, Image: data, MediaType: img.MediaType, Prompt: text}

	raw, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		return e.client.Generate(ctx, req)
	})
	if err != nil {
		return "", err
	}
	log.Debug("extract: raw response", zap.Int("bytes", len(raw)))
	return raw, nil
}

// dedupe validates targets and drops repeats, keeping first-seen order.
func dedupe(equipment model.EquipmentMap, numbers []string) ([]string, error) {
	seen := make(map[string]bool, len(numbers))
	out := make([]string, 0, len(numbers))
	var unknown []string
	for _, n := range numbers {
		if seen[n] {
			continue
		}
		seen[n] = true
		if _, ok := equipment[n]; !ok {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, n)
	}
	if len(unknown) > 0 {
		return nil, eris.Errorf("extract: unknown equipment %v", unknown)
	}
	return out, nil
}
