package testcase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/retrieval"
)

// ErrCapabilityTimeout means the generation capability did not answer within
// the caller's deadline. Retryable with backoff.
var ErrCapabilityTimeout = errors.New("generation capability timed out")

// Record states. Drafted output walks the gates in order; any failed gate
// moves the record to rejected with a reason.
const (
	StateDrafted     = "drafted"
	StateSchemaValid = "schema_valid"
	StateGrounded    = "grounded"
	StateAccepted    = "accepted"
	StateRejected    = "rejected"
)

var validTransitions = map[string]string{
	StateDrafted:     StateSchemaValid,
	StateSchemaValid: StateGrounded,
	StateGrounded:    StateAccepted,
}

// advance moves a record one gate forward, or to rejected from any
// non-terminal state.
func advance(current, next string) (string, error) {
	if current == StateAccepted || current == StateRejected {
		return current, fmt.Errorf("record state %s is terminal", current)
	}
	if next == StateRejected {
		return StateRejected, nil
	}
	if validTransitions[current] != next {
		return current, fmt.Errorf("invalid state transition %s -> %s", current, next)
	}
	return next, nil
}

// Citation points a record field back at one retrieved chunk.
type Citation struct {
	SourceID string `json:"source_id"`
	ChunkID  string `json:"chunk_id"`
}

func (c Citation) Key() string {
	return c.SourceID + ":" + c.ChunkID
}

type TestCase struct {
	TestID         string     `json:"test_id"`
	Feature        string     `json:"feature"`
	Preconditions  []string   `json:"preconditions"`
	Scenario       string     `json:"scenario"`
	Steps          []string   `json:"steps"`
	ExpectedResult string     `json:"expected_result"`
	GroundedIn     []Citation `json:"grounded_in"`
	Risk           string     `json:"risk"`
	Priority       string     `json:"priority"`
	State          string     `json:"state,omitempty"`
	CreatedAt      string     `json:"created_at,omitempty"`
}

// Rejection reports one record that failed a validation gate. The raw
// payload is kept for diagnosis, never repaired.
type Rejection struct {
	TestID string          `json:"test_id,omitempty"`
	Reason string          `json:"reason"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, opts *retrieval.Options) ([]retrieval.Result, error)
}

type Repository interface {
	NextID(ctx context.Context) (string, error)
	SaveBatch(ctx context.Context, cases []TestCase) error
	Get(ctx context.Context, id string) (*TestCase, error)
	List(ctx context.Context, feature string) ([]TestCase, error)
	Count(ctx context.Context) (int, error)
}

type Service struct {
	retriever Retriever
	generator Generator
	repo      Repository
	validator *Validator
	timeout   time.Duration
}

func NewService(r Retriever, g Generator, repo Repository, v *Validator, timeout time.Duration) *Service {
	return &Service{retriever: r, generator: g, repo: repo, validator: v, timeout: timeout}
}

type GenerateRequest struct {
	Query        string   `json:"query"`
	Feature      string   `json:"feature,omitempty"`
	TopK         *int     `json:"k,omitempty"`
	MinRelevance *float64 `json:"min_relevance,omitempty"`
}

type GenerateResult struct {
	TestCases  []TestCase  `json:"test_cases"`
	Rejections []Rejection `json:"rejections"`
}

// Generate retrieves grounding context for the query, invokes the generation
// capability under a deadline and walks every returned record through the
// validation gates. Records that fail a gate are reported as rejections, one
// bad record never fails the batch.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query is required")
	}

	contextSet, err := s.retriever.Retrieve(ctx, req.Query, &retrieval.Options{
		TopK:         req.TopK,
		MinRelevance: req.MinRelevance,
		Feature:      req.Feature,
	})
	if err != nil {
		// ErrInsufficientGrounding surfaces verbatim: no context, no generation.
		return nil, err
	}

	prompt := BuildPrompt(req.Query, contextSet)

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.generator.Generate(genCtx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrCapabilityTimeout, s.timeout)
		}
		return nil, err
	}

	drafts, err := splitDrafts(raw)
	if err != nil {
		slog.Error("generation output is not a record array", "error", err, "raw", raw)
		return nil, fmt.Errorf("failed to parse generation output: %w", err)
	}

	allowed := make(map[string]bool, len(contextSet))
	for _, c := range contextSet {
		allowed[Citation{SourceID: c.SourceID, ChunkID: c.ChunkID}.Key()] = true
	}

	result := &GenerateResult{TestCases: []TestCase{}, Rejections: []Rejection{}}
	for _, draft := range drafts {
		tc, rej := s.vet(draft, allowed)
		if rej != nil {
			result.Rejections = append(result.Rejections, *rej)
			continue
		}
		result.TestCases = append(result.TestCases, *tc)
	}

	// Persist accepted records under globally unique ids so scripts can be
	// synthesized later by test id.
	for i := range result.TestCases {
		id, err := s.repo.NextID(ctx)
		if err != nil {
			return nil, err
		}
		result.TestCases[i].TestID = id
	}
	if len(result.TestCases) > 0 {
		if err := s.repo.SaveBatch(ctx, result.TestCases); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// vet walks one draft through the gates: schema, then grounding.
func (s *Service) vet(draft json.RawMessage, allowed map[string]bool) (*TestCase, *Rejection) {
	state := StateDrafted

	if err := s.validator.Validate(draft); err != nil {
		slog.Warn("record failed schema validation", "error", err, "raw", string(draft))
		return nil, &Rejection{Reason: fmt.Sprintf("schema violation: %v", err), Raw: draft}
	}

	var tc TestCase
	if err := json.Unmarshal(draft, &tc); err != nil {
		return nil, &Rejection{Reason: fmt.Sprintf("schema violation: %v", err), Raw: draft}
	}
	state, _ = advance(state, StateSchemaValid)

	if len(tc.GroundedIn) == 0 {
		return nil, &Rejection{TestID: tc.TestID, Reason: "grounding violation: empty grounded_in", Raw: draft}
	}
	for _, cit := range tc.GroundedIn {
		if !allowed[cit.Key()] {
			return nil, &Rejection{
				TestID: tc.TestID,
				Reason: fmt.Sprintf("grounding violation: unknown chunk %s", cit.Key()),
				Raw:    draft,
			}
		}
	}
	state, _ = advance(state, StateGrounded)

	state, _ = advance(state, StateAccepted)
	tc.State = state
	return &tc, nil
}

// splitDrafts parses the capability output into individual record payloads.
// Markdown code fences around the array are tolerated.
func splitDrafts(raw string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var drafts []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &drafts); err != nil {
		// A single object is accepted as a batch of one
		var single json.RawMessage
		if objErr := json.Unmarshal([]byte(trimmed), &single); objErr == nil && strings.HasPrefix(strings.TrimSpace(trimmed), "{") {
			return []json.RawMessage{single}, nil
		}
		return nil, err
	}
	return drafts, nil
}

func (s *Service) Get(ctx context.Context, id string) (*TestCase, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, feature string) ([]TestCase, error) {
	return s.repo.List(ctx, feature)
}
