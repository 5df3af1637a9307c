// Package parser reads the optional YAML frontmatter and inline #tags of a
// Markdown note and derives a display title.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	tagRe     = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	headingRe = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
)

// maxTitle bounds titles taken from the first body line.
const maxTitle = 80

// Note is what a note's text says about itself.
type Note struct {
	Frontmatter map[string]any
	Body        string
	Tags        []string
	Title       string
}

// Parse splits frontmatter from body and collects the title and tags.
// Malformed frontmatter is treated as part of the body.
func Parse(data []byte) Note {
	fm, body := splitFrontmatter(data)
	return Note{
		Frontmatter: fm,
		Body:        body,
		Tags:        collectTags(body, fm),
		Title:       title(fm, body),
	}
}

func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	end := bytes.Index(rest, []byte("\n"+delim))
	if end < 0 {
		return nil, string(data)
	}

	var fm map[string]any
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil, string(data)
	}
	body := strings.TrimLeft(string(rest[end+1+len(delim):]), "\n\r")
	return fm, body
}

// collectTags merges frontmatter tags (a list or a comma separated string)
// with inline #tags, keeping first-seen order.
func collectTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(s string) {
		s = strings.TrimPrefix(strings.TrimSpace(s), "#")
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			add(s)
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// title prefers frontmatter, then the first heading, then the first
// non-empty line cut to maxTitle runes.
func title(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	first := ""
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			return strings.TrimSpace(m[1])
		}
		if first == "" {
			first = trimmed
		}
	}
	r := []rune(first)
	if len(r) > maxTitle {
		return strings.TrimSpace(string(r[:maxTitle])) + "…"
	}
	return first
}
