package testcase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/retrieval"
)

type fakeRetriever struct {
	results []retrieval.Result
	err     error
	lastOpt *retrieval.Options
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, opts *retrieval.Options) ([]retrieval.Result, error) {
	f.lastOpt = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeGenerator struct {
	output string
	err    error
	prompt string
	delay  time.Duration
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

type fakeCaseRepo struct {
	saved  []TestCase
	nextID int
}

func (f *fakeCaseRepo) NextID(ctx context.Context) (string, error) {
	f.nextID++
	return fmt.Sprintf("TC-%03d", f.nextID), nil
}

func (f *fakeCaseRepo) SaveBatch(ctx context.Context, cases []TestCase) error {
	f.saved = append(f.saved, cases...)
	return nil
}

func (f *fakeCaseRepo) Get(ctx context.Context, id string) (*TestCase, error) {
	for i := range f.saved {
		if f.saved[i].TestID == id {
			return &f.saved[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeCaseRepo) List(ctx context.Context, feature string) ([]TestCase, error) {
	return f.saved, nil
}

func (f *fakeCaseRepo) Count(ctx context.Context) (int, error) { return len(f.saved), nil }

func contextSet() []retrieval.Result {
	return []retrieval.Result{
		{Chunk: retrieval.Chunk{ChunkID: "chunk-a", SourceID: "src-1", Text: "SAVE15 gives 15% off"}, Score: 0.9},
		{Chunk: retrieval.Chunk{ChunkID: "chunk-b", SourceID: "src-1", Text: "the pay-now button submits the order"}, Score: 0.8},
	}
}

const validRecord = `{
	"test_id": "TC-001",
	"feature": "Discount Code",
	"preconditions": ["cart contains one item"],
	"scenario": "Apply SAVE15 at checkout",
	"steps": ["enter SAVE15 in the discount field", "click the pay-now button"],
	"expected_result": "order total is reduced by 15%",
	"grounded_in": [{"source_id": "src-1", "chunk_id": "chunk-a"}],
	"risk": "Medium",
	"priority": "P2"
}`

func newTestCaseService(ret *fakeRetriever, gen *fakeGenerator, repo *fakeCaseRepo) *Service {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return NewService(ret, gen, repo, v, 5*time.Second)
}

func TestGenerate_AcceptsGroundedRecord(t *testing.T) {
	ret := &fakeRetriever{results: contextSet()}
	gen := &fakeGenerator{output: "[" + validRecord + "]"}
	repo := &fakeCaseRepo{}
	svc := newTestCaseService(ret, gen, repo)

	result, err := svc.Generate(context.Background(), GenerateRequest{Query: "test the discount code"})
	require.NoError(t, err)
	require.Len(t, result.TestCases, 1)
	assert.Empty(t, result.Rejections)

	tc := result.TestCases[0]
	assert.Equal(t, StateAccepted, tc.State)
	assert.Equal(t, "Discount Code", tc.Feature)
	// Repo-assigned id replaces the batch-local one
	assert.Equal(t, "TC-001", tc.TestID)
	assert.Len(t, repo.saved, 1)

	// Prompt embeds only the context chunks and their citation keys
	assert.Contains(t, gen.prompt, "SAVE15 gives 15% off")
	assert.Contains(t, gen.prompt, `chunk_id="chunk-a"`)
}

func TestGenerate_FeatureFilterForwarded(t *testing.T) {
	ret := &fakeRetriever{results: contextSet()}
	gen := &fakeGenerator{output: "[]"}
	svc := newTestCaseService(ret, gen, &fakeCaseRepo{})

	_, err := svc.Generate(context.Background(), GenerateRequest{Query: "q", Feature: "discount"})
	require.NoError(t, err)
	require.NotNil(t, ret.lastOpt)
	assert.Equal(t, "discount", ret.lastOpt.Feature)
}

func TestGenerate_InsufficientGroundingIsHardStop(t *testing.T) {
	ret := &fakeRetriever{err: retrieval.ErrInsufficientGrounding}
	gen := &fakeGenerator{output: "[" + validRecord + "]"}
	svc := newTestCaseService(ret, gen, &fakeCaseRepo{})

	_, err := svc.Generate(context.Background(), GenerateRequest{Query: "off-topic query"})
	assert.ErrorIs(t, err, retrieval.ErrInsufficientGrounding)
	// The capability is never invoked without grounding
	assert.Empty(t, gen.prompt)
}

func TestGenerate_RejectsUnknownCitation(t *testing.T) {
	ret := &fakeRetriever{results: contextSet()}
	bad := `{
		"feature": "Discount Code",
		"preconditions": [],
		"scenario": "s",
		"steps": ["one"],
		"expected_result": "r",
		"grounded_in": [{"source_id": "src-1", "chunk_id": "fabricated"}],
		"risk": "Low",
		"priority": "P3"
	}`
	gen := &fakeGenerator{output: "[" + bad + "]"}
	repo := &fakeCaseRepo{}
	svc := newTestCaseService(ret, gen, repo)

	result, err := svc.Generate(context.Background(), GenerateRequest{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, result.TestCases)
	require.Len(t, result.Rejections, 1)
	assert.Contains(t, result.Rejections[0].Reason, "grounding violation")
	assert.Contains(t, result.Rejections[0].Reason, "src-1:fabricated")
	assert.Empty(t, repo.saved)
}

func TestGenerate_RejectsEmptyGroundedIn(t *testing.T) {
	ret := &fakeRetriever{results: contextSet()}
	bad := `{
		"feature": "f", "preconditions": [], "scenario": "s", "steps": ["one"],
		"expected_result": "r", "grounded_in": [], "risk": "Low", "priority": "P3"
	}`
	gen := &fakeGenerator{output: "[" + bad + "]"}
	svc := newTestCaseService(ret, gen, &fakeCaseRepo{})

	result, err := svc.Generate(context.Background(), GenerateRequest{Query: "q"})
	require.NoError(t, err)
	require.Len(t, result.Rejections, 1)
	assert.Contains(t, result.Rejections[0].Reason, "empty grounded_in")
}

func TestGenerate_RejectsEnumViolation(t *testing.T) {
	ret := &fakeRetriever{results: contextSet()}
	bad := `{
		"feature": "f", "scenario": "s", "steps": ["one"], "expected_result": "r",
		"grounded_in": [{"source_id": "src-1", "chunk_id": "chunk-a"}],
		"risk": "Catastrophic", "priority": "P2"
	}`
	gen := &fakeGenerator{output: "[" + bad + "]"}
	svc := newTestCaseService(ret, gen, &fakeCaseRepo{})

	result, err := svc.Generate(context.Background(), GenerateRequest{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, result.TestCases)
	require.Len(t, result.Rejections, 1)
	assert.Contains(t, result.Rejections[0].Reason, "schema violation")
}

func TestGenerate_OneBadRecordDoesNotFailBatch(t *testing.T) {
	ret := &fakeRetriever{results: contextSet()}
	bad := `{"feature": "f", "scenario": "s", "steps": [], "expected_result": "r",
		"grounded_in": [{"source_id": "src-1", "chunk_id": "chunk-a"}], "risk": "Low", "priority": "P3"}`
	gen := &fakeGenerator{output: "[" + validRecord + "," + bad + "]"}
	repo := &fakeCaseRepo{}
	svc := newTestCaseService(ret, gen, repo)

	result, err := svc.Generate(context.Background(), GenerateRequest{Query: "q"})
	require.NoError(t, err)
	assert.Len(t, result.TestCases, 1)
	assert.Len(t, result.Rejections, 1)
	assert.Len(t, repo.saved, 1)
}

func TestGenerate_TimeoutSurfacesRetryableError(t *testing.T) {
	ret := &fakeRetriever{results: contextSet()}
	gen := &fakeGenerator{output: "[]", delay: 200 * time.Millisecond}
	v, err := NewValidator()
	require.NoError(t, err)
	svc := NewService(ret, gen, &fakeCaseRepo{}, v, 10*time.Millisecond)

	_, err = svc.Generate(context.Background(), GenerateRequest{Query: "q"})
	assert.ErrorIs(t, err, ErrCapabilityTimeout)
}

func TestGenerate_ToleratesCodeFences(t *testing.T) {
	ret := &fakeRetriever{results: contextSet()}
	gen := &fakeGenerator{output: "```json\n[" + validRecord + "]\n```"}
	svc := newTestCaseService(ret, gen, &fakeCaseRepo{})

	result, err := svc.Generate(context.Background(), GenerateRequest{Query: "q"})
	require.NoError(t, err)
	assert.Len(t, result.TestCases, 1)
}

func TestGenerate_UnparseableOutputFails(t *testing.T) {
	ret := &fakeRetriever{results: contextSet()}
	gen := &fakeGenerator{output: "I cannot generate test cases."}
	svc := newTestCaseService(ret, gen, &fakeCaseRepo{})

	_, err := svc.Generate(context.Background(), GenerateRequest{Query: "q"})
	assert.Error(t, err)
}

func TestAdvance_TerminalStatesAreFinal(t *testing.T) {
	_, err := advance(StateAccepted, StateRejected)
	assert.Error(t, err)
	_, err = advance(StateRejected, StateSchemaValid)
	assert.Error(t, err)
}

func TestAdvance_NoGateSkipping(t *testing.T) {
	_, err := advance(StateDrafted, StateGrounded)
	assert.Error(t, err)
	_, err = advance(StateDrafted, StateAccepted)
	assert.Error(t, err)

	s, err := advance(StateDrafted, StateSchemaValid)
	require.NoError(t, err)
	s, err = advance(s, StateGrounded)
	require.NoError(t, err)
	s, err = advance(s, StateAccepted)
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, s)
}

func TestAdvance_RejectFromAnyGate(t *testing.T) {
	s, err := advance(StateSchemaValid, StateRejected)
	require.NoError(t, err)
	assert.Equal(t, StateRejected, s)
}
