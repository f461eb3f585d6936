package knowledge

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the typed header of a knowledge document. Malformed is set
// instead of returning an error when the YAML block cannot be parsed; the
// reconciler then falls back to filename-stem matching.
type Frontmatter struct {
	Title      string
	Date       string
	Type       string
	Tags       []string
	Summary    string
	ResourceID string
	Malformed  bool
}

type rawFrontmatter struct {
	Title      string    `yaml:"title"`
	Date       string    `yaml:"date"`
	Type       string    `yaml:"type"`
	Tags       yaml.Node `yaml:"tags"`
	Summary    string    `yaml:"summary"`
	ResourceID string    `yaml:"resource_id"`
}

// ParseFrontmatter splits a markdown document into its "---"-delimited YAML
// header and body. A document without a leading --- line has an empty,
// well-formed frontmatter and the whole content as body.
func ParseFrontmatter(content []byte) (Frontmatter, string) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") && text != "---" {
		return Frontmatter{}, text
	}

	rest := strings.TrimPrefix(text, "---\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		// Unterminated header block.
		return Frontmatter{Malformed: true}, text
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	var raw rawFrontmatter
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return Frontmatter{Malformed: true}, body
	}

	fm := Frontmatter{
		Title:      strings.TrimSpace(raw.Title),
		Date:       strings.TrimSpace(raw.Date),
		Type:       strings.TrimSpace(raw.Type),
		Summary:    strings.TrimSpace(raw.Summary),
		ResourceID: strings.TrimSpace(raw.ResourceID),
		Tags:       parseTagsNode(raw.Tags),
	}
	return fm, body
}

// parseTagsNode accepts both the bracketed list form (tags: [a, b]) and the
// comma-separated scalar form (tags: a, b, c) seen in generated documents.
func parseTagsNode(node yaml.Node) []string {
	switch node.Kind {
	case yaml.SequenceNode:
		var tags []string
		if err := node.Decode(&tags); err != nil {
			return nil
		}
		return cleanTags(tags)
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil
		}
		return cleanTags(strings.Split(s, ","))
	default:
		return nil
	}
}

func cleanTags(in []string) []string {
	var out []string
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
