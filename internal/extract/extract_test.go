package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/masterfile-cli/internal/imageindex"
	"github.com/sells-group/masterfile-cli/internal/model"
	"github.com/sells-group/masterfile-cli/internal/policy"
	"github.com/sells-group/masterfile-cli/internal/resilience"
	"github.com/sells-group/masterfile-cli/internal/vision"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// fakeIndex serves images keyed by PMT number.
type fakeIndex struct {
	images map[string][]imageindex.Image
	err    error
	calls  int
}

func (f *fakeIndex) Lookup(pmt string) ([]imageindex.Image, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.images[pmt], nil
}

// scriptedClient answers per equipment from a queue of replies; the last
// reply repeats once the queue is drained.
type scriptedClient struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   map[string]int
	prompts map[string][]string
}

type reply struct {
	text string
	err  error
}

func newScripted() *scriptedClient {
	return &scriptedClient{
		replies: map[string][]reply{},
		calls:   map[string]int{},
		prompts: map[string][]string{},
	}
}

func (s *scriptedClient) on(equipment string, replies ...reply) *scriptedClient {
	s.replies[equipment] = replies
	return s
}

func (s *scriptedClient) Generate(_ context.Context, req vision.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls[req.Equipment]
	s.calls[req.Equipment]++
	s.prompts[req.Equipment] = append(s.prompts[req.Equipment], req.Prompt)
	rs := s.replies[req.Equipment]
	if len(rs) == 0 {
		return "", nil
	}
	if i >= len(rs) {
		i = len(rs) - 1
	}
	return rs[i].text, rs[i].err
}

func writeImage(t *testing.T, dir, name string) imageindex.Image {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))
	return imageindex.Image{Path: path, MediaType: "image/png"}
}

func equipmentFixture() model.EquipmentMap {
	return model.EquipmentMap{
		"V-001": {EquipmentNumber: "V-001", PMTNumber: "PMT-1", Components: []*model.Component{{Name: "Shell"}}},
		"H-002": {EquipmentNumber: "H-002", PMTNumber: "PMT-2", Components: []*model.Component{{Name: "Shell"}}},
		"X-900": {EquipmentNumber: "X-900", PMTNumber: "PMT-9", Components: []*model.Component{{Name: "Shell"}}},
	}
}

const fullResponse = `COMPONENT: Shell
FLUID: Steam
MATERIAL_SPEC: SA-516
MATERIAL_GRADE: 70
INSULATION: yes
DESIGN_TEMP: 350 °F
DESIGN_PRESS: 12.5
OPERATING_TEMP: 300
OPERATING_PRESS: 10`

func newIndex(t *testing.T, pmts ...string) *fakeIndex {
	t.Helper()
	dir := t.TempDir()
	idx := &fakeIndex{images: map[string][]imageindex.Image{}}
	for _, p := range pmts {
		idx.images[p] = []imageindex.Image{writeImage(t, dir, p+".png")}
	}
	return idx
}

func TestExtract_RetryConvergence(t *testing.T) {
	eqs := equipmentFixture()
	client := newScripted().on("X-900",
		reply{text: "COMPONENT: Shell\nFLUID: NOT_FOUND"},
		reply{text: fullResponse},
	)
	ex := New(policy.Default(), newIndex(t, "PMT-9"), client, Options{MaxRetries: 5})

	res, err := ex.ExtractOne(context.Background(), eqs, "X-900")
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.True(t, res.Converged())
	assert.Equal(t, 2, res.AttemptsUsed)
	assert.Equal(t, 2, client.calls["X-900"])
	require.Len(t, res.Passes, 2)
	assert.Equal(t, []string{"X-900"}, res.Passes[0].Failed)
	assert.Equal(t, []string{"X-900"}, res.Passes[1].Extracted)

	shell := eqs["X-900"].Component("Shell")
	assert.Equal(t, "Steam", shell.Get(model.FieldFluid))
	assert.Equal(t, "350", shell.Get(model.FieldDesignTemp))
	assert.Equal(t, "10", shell.Get(model.FieldOperatingPressure))
}

func TestExtract_InsulationOnlyScenario(t *testing.T) {
	eqs := equipmentFixture()
	client := newScripted().on("V-001", reply{text: "COMPONENT: Shell\nINSULATION: no\nFLUID: Air"})
	ex := New(policy.Default(), newIndex(t, "PMT-1"), client, Options{})

	res, err := ex.ExtractOne(context.Background(), eqs, "V-001")
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 1, res.AttemptsUsed)

	shell := eqs["V-001"].Component("Shell")
	assert.Equal(t, "no", shell.Get(model.FieldInsulation))
	assert.False(t, shell.Has(model.FieldFluid))
	assert.NotContains(t, client.prompts["V-001"][0], "FLUID")
}

func TestExtract_SkipOperatingNoRetry(t *testing.T) {
	eqs := equipmentFixture()
	client := newScripted().on("H-002", reply{text: fullResponse})
	ex := New(policy.Default(), newIndex(t, "PMT-2"), client, Options{})

	res, err := ex.ExtractOne(context.Background(), eqs, "H-002")
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 1, res.AttemptsUsed)
	assert.Len(t, res.Passes, 1)
	assert.Equal(t, 1, client.calls["H-002"])

	shell := eqs["H-002"].Component("Shell")
	assert.Equal(t, "Steam", shell.Get(model.FieldFluid))
	assert.False(t, shell.Has(model.FieldOperatingTemp))
	assert.False(t, shell.Has(model.FieldOperatingPressure))
}

func TestExtract_ExhaustsRetries(t *testing.T) {
	eqs := equipmentFixture()
	client := newScripted().on("X-900", reply{text: "COMPONENT: Shell\nFLUID: unclear"})
	ex := New(policy.Default(), newIndex(t, "PMT-9"), client, Options{MaxRetries: 3})

	res, err := ex.ExtractOne(context.Background(), eqs, "X-900")
	require.NoError(t, err, "partial success is not an error")
	assert.Equal(t, []string{"X-900"}, res.Missing)
	assert.Equal(t, 3, res.AttemptsUsed)
	assert.Len(t, res.Passes, 3)
	assert.Equal(t, 3, client.calls["X-900"])
}

func TestExtract_NoImagesIsUnextractable(t *testing.T) {
	eqs := equipmentFixture()
	client := newScripted()
	idx := newIndex(t)
	ex := New(policy.Default(), idx, client, Options{MaxRetries: 5})

	res, err := ex.ExtractOne(context.Background(), eqs, "X-900")
	require.NoError(t, err)
	assert.Equal(t, []string{"X-900"}, res.Unextractable)
	assert.Equal(t, []string{"X-900"}, res.Missing)
	assert.Equal(t, 0, res.AttemptsUsed, "no prompt means no attempt")
	assert.Equal(t, 1, idx.calls, "unextractable equipment is not looked up again")
	assert.Empty(t, client.calls)
}

func TestExtract_BatchOnlyRetriesMissing(t *testing.T) {
	eqs := equipmentFixture()
	client := newScripted().
		on("V-001", reply{text: "COMPONENT: Shell\nINSULATION: yes"}).
		on("H-002", reply{text: "COMPONENT: Shell\nFLUID: Water"}, reply{text: fullResponse}).
		on("X-900", reply{text: fullResponse})
	ex := New(policy.Default(), newIndex(t, "PMT-1", "PMT-2", "PMT-9"), client, Options{})

	res, err := ex.ExtractAll(context.Background(), eqs)
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 2, res.AttemptsUsed)
	require.Len(t, res.Passes, 2)
	assert.Equal(t, []string{"H-002", "V-001", "X-900"}, res.Passes[0].Targets)
	assert.Equal(t, []string{"H-002"}, res.Passes[1].Targets)
	assert.Equal(t, 1, client.calls["V-001"])
	assert.Equal(t, 2, client.calls["H-002"])
	assert.Equal(t, 1, client.calls["X-900"])
	// First-pass value survives the second pass.
	assert.Equal(t, "Water", eqs["H-002"].Component("Shell").Get(model.FieldFluid))
}

func TestExtract_TriesImagesInOrder(t *testing.T) {
	eqs := equipmentFixture()
	dir := t.TempDir()
	idx := &fakeIndex{images: map[string][]imageindex.Image{
		"PMT-1": {
			{Path: filepath.Join(dir, "missing.png"), MediaType: "image/png"},
			writeImage(t, dir, "blank.png"),
			writeImage(t, dir, "good.png"),
			writeImage(t, dir, "never.png"),
		},
	}}
	client := newScripted().on("V-001",
		reply{text: "nothing legible"},
		reply{text: "COMPONENT: Shell\nINSULATION: no"},
	)
	ex := New(policy.Default(), idx, client, Options{})

	res, err := ex.ExtractOne(context.Background(), eqs, "V-001")
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 2, client.calls["V-001"], "unreadable image skipped, stops at first image with data")
}

func TestExtract_TransientErrorsRetried(t *testing.T) {
	eqs := equipmentFixture()
	overload := resilience.NewTransientError(errors.New("overloaded"), 529)
	client := newScripted().on("V-001",
		reply{err: overload},
		reply{err: overload},
		reply{text: "COMPONENT: Shell\nINSULATION: no"},
	)
	ex := New(policy.Default(), newIndex(t, "PMT-1"), client, Options{MaxRetries: 5})

	res, err := ex.ExtractOne(context.Background(), eqs, "V-001")
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 1, res.AttemptsUsed, "call-level retries stay within one pass")
	assert.Equal(t, 3, client.calls["V-001"])
}

func TestExtract_PermanentErrorIsNoData(t *testing.T) {
	eqs := equipmentFixture()
	client := newScripted().on("V-001", reply{err: errors.New("invalid image")})
	ex := New(policy.Default(), newIndex(t, "PMT-1"), client, Options{MaxRetries: 2})

	res, err := ex.ExtractOne(context.Background(), eqs, "V-001")
	require.NoError(t, err)
	assert.Equal(t, []string{"V-001"}, res.Missing)
	assert.Equal(t, 2, res.AttemptsUsed)
	assert.Equal(t, 2, client.calls["V-001"], "permanent errors are not retried within a pass")
}

func TestExtract_LookupErrorDoesNotAbortBatch(t *testing.T) {
	eqs := equipmentFixture()
	idx := &fakeIndex{err: errors.New("disk gone")}
	ex := New(policy.Default(), idx, newScripted(), Options{MaxRetries: 2})

	res, err := ex.ExtractList(context.Background(), eqs, []string{"V-001", "H-002"})
	require.NoError(t, err)
	assert.Equal(t, []string{"V-001", "H-002"}, res.Missing)
	assert.Equal(t, 2, res.AttemptsUsed)
	assert.Equal(t, []string{"V-001", "H-002"}, res.Passes[0].Failed)
}

type panickyClient struct{}

func (panickyClient) Generate(context.Context, vision.Request) (string, error) {
	panic("boom")
}

func TestExtract_RecoversFromPanic(t *testing.T) {
	eqs := equipmentFixture()
	ex := New(policy.Default(), newIndex(t, "PMT-1"), panickyClient{}, Options{MaxRetries: 1})

	res, err := ex.ExtractOne(context.Background(), eqs, "V-001")
	require.NoError(t, err)
	assert.Equal(t, []string{"V-001"}, res.Missing)
}

func TestExtract_AlreadyCompleteStillReadOnFirstPass(t *testing.T) {
	eqs := equipmentFixture()
	eqs["V-001"].Component("Shell").Set(model.FieldInsulation, "yes")
	client := newScripted().on("V-001", reply{text: "COMPONENT: Shell\nINSULATION: no"})
	ex := New(policy.Default(), newIndex(t, "PMT-1"), client, Options{})

	res, err := ex.ExtractOne(context.Background(), eqs, "V-001")
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 1, client.calls["V-001"])
	assert.Equal(t, "yes", eqs["V-001"].Component("Shell").Get(model.FieldInsulation), "existing value kept")
}

func TestExtract_CompleteEquipmentWithUnreadableAnswerIsNotRetried(t *testing.T) {
	eqs := equipmentFixture()
	eqs["V-001"].Component("Shell").Set(model.FieldInsulation, "yes")
	client := newScripted().on("V-001", reply{text: "garbage"})
	ex := New(policy.Default(), newIndex(t, "PMT-1"), client, Options{MaxRetries: 5})

	res, err := ex.ExtractOne(context.Background(), eqs, "V-001")
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 1, res.AttemptsUsed)
	assert.Equal(t, 1, client.calls["V-001"])
}

func TestExtract_UnknownEquipment(t *testing.T) {
	ex := New(policy.Default(), newIndex(t), newScripted(), Options{})
	_, err := ex.ExtractList(context.Background(), equipmentFixture(), []string{"V-001", "NOPE"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown equipment")
}

func TestExtract_DuplicateTargets(t *testing.T) {
	eqs := equipmentFixture()
	client := newScripted().on("V-001", reply{text: "COMPONENT: Shell\nINSULATION: no"})
	ex := New(policy.Default(), newIndex(t, "PMT-1"), client, Options{})

	res, err := ex.ExtractList(context.Background(), eqs, []string{"V-001", "V-001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"V-001"}, res.Passes[0].Targets)
	assert.Equal(t, 1, client.calls["V-001"])
}

func TestExtract_CancelledBetweenItems(t *testing.T) {
	eqs := equipmentFixture()
	ctx, cancel := context.WithCancel(context.Background())
	client := &cancellingClient{cancel: cancel}
	ex := New(policy.Default(), newIndex(t, "PMT-1", "PMT-2", "PMT-9"), client, Options{})

	res, err := ex.ExtractAll(ctx, eqs)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.calls, "stops before the next equipment")
	require.Len(t, res.Passes, 1)
	assert.Equal(t, []string{"H-002"}, res.Passes[0].Extracted)
	assert.Equal(t, []string{"V-001", "X-900"}, res.Missing)
}

// cancellingClient answers H-002 fully, then cancels the run.
type cancellingClient struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingClient) Generate(_ context.Context, _ vision.Request) (string, error) {
	c.calls++
	c.cancel()
	return fullResponse, nil
}

func TestExtract_OnPass(t *testing.T) {
	eqs := equipmentFixture()
	client := newScripted().on("V-001", reply{text: "COMPONENT: Shell\nINSULATION: no"})
	var seen []model.PassResult
	ex := New(policy.Default(), newIndex(t, "PMT-1"), client, Options{OnPass: func(p model.PassResult) { seen = append(seen, p) }})

	_, err := ex.ExtractOne(context.Background(), eqs, "V-001")
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, 1, seen[0].Attempt)
	assert.Empty(t, seen[0].Missing)
}
