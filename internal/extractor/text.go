package extractor

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// extractMarkdown flattens markdown to plain text by walking the goldmark
// AST: code blocks are dropped, link text is kept, block boundaries become
// blank lines so paragraph structure survives for the chunker.
func extractMarkdown(data []byte) (string, error) {
	md := goldmark.New()
	source := []byte(decodeText(data))
	doc := md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock, ast.KindRawHTML:
			return ast.WalkSkipChildren, nil
		}
		if entering {
			if t, ok := n.(*ast.Text); ok {
				b.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
			return ast.WalkContinue, nil
		}
		// Separate blocks with a blank line on exit.
		if n.Type() == ast.TypeBlock {
			b.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: markdown: %v", ErrExtractionFailed, err)
	}
	return b.String(), nil
}

var rtfControlRe = regexp.MustCompile(`(?i)\\[a-z]+-?\d* ?|{\\[^{}]*}|[{}]|\\'[0-9a-f]{2}`)

// extractRTF strips RTF control words and groups. A simplified parser, but
// adequate for the plain prose this system indexes.
func extractRTF(data []byte) (string, error) {
	s := decodeText(data)
	if !strings.HasPrefix(strings.TrimSpace(s), `{\rtf`) {
		return "", fmt.Errorf("%w: rtf: missing header", ErrExtractionFailed)
	}
	return rtfControlRe.ReplaceAllString(s, " "), nil
}

// extractCSV renders each record as a " | " separated line.
func extractCSV(data []byte) (string, error) {
	reader := csv.NewReader(strings.NewReader(decodeText(data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("%w: csv: %v", ErrExtractionFailed, err)
	}
	lines := make([]string, 0, len(records))
	for _, record := range records {
		lines = append(lines, strings.Join(record, " | "))
	}
	return strings.Join(lines, "\n"), nil
}

// extractJSON flattens a JSON document into "path: value" lines so that
// nested values remain searchable as text.
func extractJSON(data []byte) (string, error) {
	var obj any
	if err := json.Unmarshal([]byte(decodeText(data)), &obj); err != nil {
		return "", fmt.Errorf("%w: json: %v", ErrExtractionFailed, err)
	}
	return strings.Join(flattenJSON(obj, ""), "\n"), nil
}

func flattenJSON(obj any, prefix string) []string {
	var lines []string
	switch v := obj.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			childPrefix := k
			if prefix != "" {
				childPrefix = prefix + "." + k
			}
			lines = append(lines, flattenJSON(v[k], childPrefix)...)
		}
	case []any:
		for i, item := range v {
			lines = append(lines, flattenJSON(item, fmt.Sprintf("%s[%d]", prefix, i))...)
		}
	default:
		lines = append(lines, fmt.Sprintf("%s: %v", prefix, v))
	}
	return lines
}
