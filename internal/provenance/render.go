package provenance

import (
	"fmt"
	"strings"
)

// Footnote is one citation entry: the numbered (source, method) pair a
// rendered value points at.
type Footnote struct {
	Number int
	Source string
	Method string
}

// String renders the footnote in its report form.
func (f Footnote) String() string {
	return fmt.Sprintf("[%d] %s: %s", f.Number, f.Source, f.Method)
}

// Render substitutes every "{{cite key}}" directive in the template with
// the stored value followed by a footnote marker, and returns the body
// alongside the footnote list in first-citation order.
//
// Repeated citations of the same (source, method) pair reuse one footnote
// number; deduplication is keyed by the pair, not by occurrence order of
// keys. A directive naming a key with no finding is an error: values must
// already exist in the store when the template is rendered.
//
// Render is a pure function over the template and the store snapshot.
func Render(template string, store *Store) (string, []Footnote, error) {
	var body strings.Builder
	var footnotes []Footnote
	numbers := make(map[[2]string]int)

	rest := template
	for {
		start := strings.Index(rest, "{{cite ")
		if start < 0 {
			body.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			return "", nil, fmt.Errorf("unterminated citation directive at byte %d", len(template)-len(rest)+start)
		}
		end += start

		key := strings.TrimSpace(rest[start+len("{{cite ") : end])
		finding, ok := store.Get(key)
		if !ok {
			return "", nil, fmt.Errorf("citation references unknown finding %q", key)
		}

		pair := [2]string{finding.Source, finding.Method}
		number, ok := numbers[pair]
		if !ok {
			number = len(footnotes) + 1
			numbers[pair] = number
			footnotes = append(footnotes, Footnote{Number: number, Source: finding.Source, Method: finding.Method})
		}

		body.WriteString(rest[:start])
		fmt.Fprintf(&body, "%s[%d]", FormatValue(finding.Value), number)
		rest = rest[end+2:]
	}

	return body.String(), footnotes, nil
}
