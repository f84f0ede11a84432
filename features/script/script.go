package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Divyansh-Kumawat/ocean-ai/features/source"
	"github.com/Divyansh-Kumawat/ocean-ai/features/testcase"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/markup"
)

var ErrNotMarkup = errors.New("source is not a markup document")

// Script is a synthesized automation script plus the step bindings that
// produced it. Derived on demand, never persisted.
type Script struct {
	TestID   string    `json:"test_id"`
	SourceID string    `json:"markup_source_id"`
	Language string    `json:"language"`
	Text     string    `json:"script"`
	Bindings []Binding `json:"bindings"`
	Warnings []string  `json:"warnings"`
}

type TestCaseStore interface {
	Get(ctx context.Context, id string) (*testcase.TestCase, error)
}

type MarkupStore interface {
	GetWithContent(ctx context.Context, id string) (*source.Source, error)
}

type Service struct {
	cases   TestCaseStore
	sources MarkupStore
}

func NewService(cases TestCaseStore, sources MarkupStore) *Service {
	return &Service{cases: cases, sources: sources}
}

// Synthesize maps every step of a test case onto the markup document's
// element descriptors and renders a Selenium script. Unresolved steps are
// kept with an explicit marker instead of a guessed locator.
func (s *Service) Synthesize(ctx context.Context, testID, markupSourceID string) (*Script, error) {
	tc, err := s.cases.Get(ctx, testID)
	if err != nil {
		return nil, err
	}

	doc, err := s.sources.GetWithContent(ctx, markupSourceID)
	if err != nil {
		return nil, err
	}
	if doc.Format != source.FormatMarkup {
		return nil, fmt.Errorf("%w: source %s has format %q", ErrNotMarkup, markupSourceID, doc.Format)
	}

	descs := markup.Extract(doc.Content)

	script := &Script{
		TestID:   tc.TestID,
		SourceID: doc.ID,
		Language: "python-selenium",
		Warnings: []string{},
	}

	for i, step := range tc.Steps {
		b := Binding{StepIndex: i, Step: step, Action: inferAction(step)}
		b.Selector, b.Kind = resolve(step, descs)
		if b.Kind == "" {
			script.Warnings = append(script.Warnings, fmt.Sprintf("step %d: %s", i+1, NotFoundMarker))
		}
		if b.Action == "type" {
			b.Value = inferValue(step)
		}
		script.Bindings = append(script.Bindings, b)
	}

	script.Text = render(tc, script.Bindings)
	return script, nil
}

// render emits one setup/teardown scaffold and one guarded action block per
// step. Readiness is always an explicit wait condition, never a sleep.
func render(tc *testcase.TestCase, bindings []Binding) string {
	var b strings.Builder

	b.WriteString("import unittest\n\n")
	b.WriteString("from selenium import webdriver\n")
	b.WriteString("from selenium.webdriver.common.by import By\n")
	b.WriteString("from selenium.webdriver.support.ui import WebDriverWait\n")
	b.WriteString("from selenium.webdriver.support import expected_conditions as EC\n\n")
	b.WriteString("TARGET_URL = \"http://localhost:8080\"  # adjust to the page under test\n\n\n")

	fmt.Fprintf(&b, "class %s(unittest.TestCase):\n", className(tc.Feature))
	b.WriteString("    def setUp(self):\n")
	b.WriteString("        self.driver = webdriver.Chrome()\n")
	b.WriteString("        self.wait = WebDriverWait(self.driver, 10)\n")
	b.WriteString("        self.driver.get(TARGET_URL)\n\n")
	b.WriteString("    def tearDown(self):\n")
	b.WriteString("        self.driver.quit()\n\n")

	fmt.Fprintf(&b, "    def %s(self):\n", methodName(tc.TestID))
	fmt.Fprintf(&b, "        \"\"\"%s\"\"\"\n", tc.Scenario)

	for _, bind := range bindings {
		fmt.Fprintf(&b, "        # Step %d: %s\n", bind.StepIndex+1, bind.Step)
		if bind.Kind == "" {
			fmt.Fprintf(&b, "        # %s: no element descriptor matches this step\n", NotFoundMarker)
			b.WriteString("        self.fail(\"unresolved selector, complete this step manually\")\n\n")
			continue
		}

		locator := locatorFor(bind)
		switch bind.Action {
		case "type":
			fmt.Fprintf(&b, "        el = self.wait.until(EC.element_to_be_clickable(%s))\n", locator)
			b.WriteString("        el.clear()\n")
			fmt.Fprintf(&b, "        el.send_keys(%q)\n", bind.Value)
		case "select":
			fmt.Fprintf(&b, "        el = self.wait.until(EC.element_to_be_clickable(%s))\n", locator)
			b.WriteString("        el.click()\n")
		case "verify":
			fmt.Fprintf(&b, "        el = self.wait.until(EC.visibility_of_element_located(%s))\n", locator)
			b.WriteString("        self.assertTrue(el.is_displayed())\n")
		default:
			fmt.Fprintf(&b, "        el = self.wait.until(EC.element_to_be_clickable(%s))\n", locator)
			b.WriteString("        el.click()\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "        # Expected result: %s\n", tc.ExpectedResult)
	b.WriteString("\n\nif __name__ == \"__main__\":\n    unittest.main()\n")

	return b.String()
}

func locatorFor(b Binding) string {
	switch b.Kind {
	case KindIdentifier:
		return fmt.Sprintf("(By.ID, %q)", b.Selector)
	case KindName:
		return fmt.Sprintf("(By.NAME, %q)", b.Selector)
	default:
		return fmt.Sprintf("(By.XPATH, %q)", b.Selector)
	}
}

// className turns a feature name into a Python test class name.
func className(feature string) string {
	var b strings.Builder
	for _, word := range strings.Fields(normalize(feature)) {
		r := []rune(word)
		b.WriteString(strings.ToUpper(string(r[0])) + string(r[1:]))
	}
	if b.Len() == 0 {
		return "GeneratedTest"
	}
	return b.String() + "Test"
}

// methodName turns a test id like TC-001 into test_tc_001.
func methodName(testID string) string {
	name := strings.ToLower(strings.ReplaceAll(testID, "-", "_"))
	return "test_" + name
}
