package search

import "strings"

var cellSeparators = strings.NewReplacer(":", "", "-", "")

// MarkdownFacts splits a tenant's markdown knowledge text into indexable
// facts, one per non-empty line. Table rows become their cells joined by a
// space; separator and empty rows are dropped. Heading markers and list
// bullets are removed.
func MarkdownFacts(text string) []string {
	var facts []string
	for _, line := range strings.Split(text, "\n") {
		if f, ok := markdownFact(strings.TrimSpace(line)); ok {
			facts = append(facts, f)
		}
	}
	return facts
}

func markdownFact(line string) (string, bool) {
	if line == "" {
		return "", false
	}
	if len(line) > 1 && line[0] == '|' && line[len(line)-1] == '|' {
		return tableRow(line)
	}
	line = strings.TrimSpace(strings.TrimLeft(line, "#"))
	if line == "-" || line == "*" {
		return "", false
	}
	line = strings.TrimPrefix(line, "- ")
	line = strings.TrimPrefix(line, "* ")
	line = strings.TrimSpace(line)
	return line, line != ""
}

func tableRow(line string) (string, bool) {
	var cells []string
	content := false
	for _, c := range strings.Split(line[1:len(line)-1], "|") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		cells = append(cells, c)
		if strings.TrimSpace(cellSeparators.Replace(c)) != "" {
			content = true
		}
	}
	if !content {
		return "", false
	}
	return strings.Join(cells, " "), true
}
