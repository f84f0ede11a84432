package script

import (
	"strings"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/markup"
)

// Selector kinds in fixed preference order. A structural path is the last
// resort before giving up.
const (
	KindIdentifier = "identifier"
	KindName       = "name"
	KindPath       = "structural-path"
)

// NotFoundMarker flags a step whose target could not be resolved. Emitting
// the marker beats guessing a brittle locator.
const NotFoundMarker = "[selector not found]"

// Binding records how one step was mapped onto the page.
type Binding struct {
	StepIndex int    `json:"step_index"`
	Step      string `json:"step"`
	Selector  string `json:"selector,omitempty"`
	Kind      string `json:"selector_kind,omitempty"`
	Action    string `json:"action"`
	Value     string `json:"value,omitempty"`
}

// resolve matches step text against the page's element descriptors:
// identifier first, then name, then a structural path keyed on the tag.
// Among candidates of the same kind the longest match wins, so
// "discount-code" beats "code".
func resolve(step string, descs []markup.Descriptor) (selector, kind string) {
	needle := normalize(step)

	best := ""
	for _, d := range descs {
		if id := normalize(d.ID); id != "" && strings.Contains(needle, id) && len(id) > len(best) {
			best = id
			selector, kind = d.ID, KindIdentifier
		}
	}
	if kind != "" {
		return selector, kind
	}

	for _, d := range descs {
		if name := normalize(d.Name); name != "" && strings.Contains(needle, name) && len(name) > len(best) {
			best = name
			selector, kind = d.Name, KindName
		}
	}
	if kind != "" {
		return selector, kind
	}

	for _, d := range descs {
		if strings.Contains(needle, " "+d.Tag+" ") || strings.HasSuffix(needle, " "+d.Tag) {
			return d.Path, KindPath
		}
	}
	return "", ""
}

// normalize folds case and treats hyphens and underscores as spaces, so the
// identifier "discount-code" matches the phrase "discount code".
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

// inferAction maps a step's leading verb onto an automation action.
func inferAction(step string) string {
	lower := strings.ToLower(step)
	switch {
	case containsAny(lower, "enter", "type", "fill", "input", "paste"):
		return "type"
	case containsAny(lower, "select", "choose", "pick"):
		return "select"
	case containsAny(lower, "verify", "check", "assert", "expect", "confirm", "see"):
		return "verify"
	case containsAny(lower, "click", "press", "tap", "submit"):
		return "click"
	default:
		return "click"
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// inferValue pulls the literal a typing step should send: a quoted string
// if present, otherwise an all-caps token like a coupon code.
func inferValue(step string) string {
	for _, quote := range []string{`"`, "'"} {
		if i := strings.Index(step, quote); i >= 0 {
			if j := strings.Index(step[i+1:], quote); j >= 0 {
				return step[i+1 : i+1+j]
			}
		}
	}
	for _, tok := range strings.Fields(step) {
		trimmed := strings.Trim(tok, ".,;:!?")
		if len(trimmed) >= 2 && trimmed == strings.ToUpper(trimmed) && hasLetter(trimmed) {
			return trimmed
		}
	}
	return "test input"
}

func hasLetter(s string) bool {
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}
