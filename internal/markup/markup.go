package markup

import (
	"fmt"
	"regexp"
	"strings"
)

// Descriptor identifies one addressable element in a markup document.
// Start and End are byte offsets of the opening tag in the raw content,
// Path is an XPath that selects the element by tag-scoped document order.
type Descriptor struct {
	Tag   string `json:"tag"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Path  string `json:"path"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

var (
	tagRe  = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9-]*)([^<>]*)>`)
	idRe   = regexp.MustCompile(`(?i)\bid\s*=\s*["']([^"']+)["']`)
	nameRe = regexp.MustCompile(`(?i)\bname\s*=\s*["']([^"']+)["']`)
	roleRe = regexp.MustCompile(`(?i)\brole\s*=\s*["']([^"']+)["']`)
)

// Extract scans raw markup and returns a descriptor per opening tag, in
// document order. Closing tags, comments and doctype declarations are
// skipped by construction of the tag pattern.
func Extract(content string) []Descriptor {
	matches := tagRe.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}

	counts := make(map[string]int)
	out := make([]Descriptor, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(content[m[2]:m[3]])
		attrs := content[m[4]:m[5]]
		counts[tag]++

		d := Descriptor{
			Tag:   tag,
			Path:  fmt.Sprintf("(//%s)[%d]", tag, counts[tag]),
			Start: m[0],
			End:   m[1],
		}
		if sub := idRe.FindStringSubmatch(attrs); sub != nil {
			d.ID = sub[1]
		}
		if sub := nameRe.FindStringSubmatch(attrs); sub != nil {
			d.Name = sub[1]
		}
		if sub := roleRe.FindStringSubmatch(attrs); sub != nil {
			d.Role = sub[1]
		}
		out = append(out, d)
	}
	return out
}

// Identifiers collects the distinct id and name attribute values from a
// descriptor list, preserving first-seen order.
func Identifiers(descs []Descriptor) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, d := range descs {
		add(d.ID)
		add(d.Name)
	}
	return out
}
