package testcase

import (
	"fmt"
	"strings"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/retrieval"
)

// BuildPrompt embeds only the retrieved chunk texts and their citation keys.
// Nothing outside the context set reaches the capability, so a well-behaved
// generator has nothing ungrounded to cite.
func BuildPrompt(query string, contextSet []retrieval.Result) string {
	var b strings.Builder

	b.WriteString("You are a senior QA engineer. Generate test cases strictly from the context below.\n\n")
	b.WriteString("CONTEXT:\n")
	for _, c := range contextSet {
		fmt.Fprintf(&b, "--- citation source_id=%q chunk_id=%q ---\n%s\n\n", c.SourceID, c.ChunkID, c.Text)
	}

	fmt.Fprintf(&b, "TASK: %s\n\n", query)
	b.WriteString(`Respond with a JSON array of test case objects. Each object must have:
- "test_id": string like "TC-001", numbered within this batch
- "feature": short feature name
- "preconditions": array of strings
- "scenario": one-sentence description
- "steps": array of user actions, one action per step
- "expected_result": observable outcome
- "grounded_in": array of {"source_id", "chunk_id"} objects, citing ONLY the citations listed above
- "risk": "Low", "Medium" or "High"
- "priority": "P1", "P2" or "P3"

Rules:
- Every test case must cite at least one chunk from the context.
- Do not mention any feature, value, selector or business rule that does not appear in the cited chunks.
- If the context does not support a test case, produce fewer test cases rather than inventing details.
- Respond with the JSON array only, no prose.`)

	return b.String()
}
