package notes

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is what a note's leading metadata region declares about it.
type Metadata struct {
	ID    string
	Title string

	// End is the byte offset just past the metadata region.
	End int
}

// frontMatter is the subset of markdown front matter notevec reads.
type frontMatter struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// ParseMetadata reads the metadata region of content according to the note
// format implied by ext (".org" or ".md"). Other formats have no metadata.
func ParseMetadata(content, ext string) (Metadata, error) {
	switch strings.ToLower(ext) {
	case ".org":
		return parseOrg(content), nil
	case ".md", ".markdown":
		return parseMarkdown(content)
	default:
		return Metadata{}, nil
	}
}

// parseOrg consumes a leading property drawer and #+keyword lines. Blank
// lines between them are skipped, but End stops after the last metadata line.
func parseOrg(content string) Metadata {
	var (
		md       Metadata
		pos      int
		inDrawer bool
	)

	for pos < len(content) {
		line, next := nextLine(content, pos)
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)

		switch {
		case inDrawer:
			if upper == ":END:" {
				inDrawer = false
				md.End = next
				break
			}
			if key, value, ok := orgProperty(trimmed); ok && strings.EqualFold(key, "ID") {
				md.ID = value
			}
		case upper == ":PROPERTIES:":
			inDrawer = true
		case strings.HasPrefix(trimmed, "#+"):
			if key, value, ok := strings.Cut(trimmed[2:], ":"); ok && strings.EqualFold(key, "title") {
				md.Title = strings.TrimSpace(value)
			}
			md.End = next
		case trimmed == "":
		default:
			return md
		}

		pos = next
	}

	return md
}

// orgProperty splits a drawer line of the form ":KEY: value".
func orgProperty(line string) (string, string, bool) {
	if !strings.HasPrefix(line, ":") {
		return "", "", false
	}
	key, value, ok := strings.Cut(line[1:], ":")
	if !ok {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

// parseMarkdown consumes a YAML front matter block delimited by "---" lines.
func parseMarkdown(content string) (Metadata, error) {
	first, pos := nextLine(content, 0)
	if strings.TrimRight(first, " \t\r") != "---" {
		return Metadata{}, nil
	}

	bodyStart := pos
	for pos < len(content) {
		line, next := nextLine(content, pos)
		if strings.TrimRight(line, " \t\r") == "---" {
			md := Metadata{End: next}

			var fm frontMatter
			if err := yaml.Unmarshal([]byte(content[bodyStart:pos]), &fm); err != nil {
				return md, fmt.Errorf("parsing front matter: %w", err)
			}
			md.ID = strings.TrimSpace(fm.ID)
			md.Title = strings.TrimSpace(fm.Title)
			return md, nil
		}
		pos = next
	}

	// Unterminated front matter is treated as body text
	return Metadata{}, nil
}

// nextLine returns the line starting at pos without its newline and the
// offset of the following line.
func nextLine(content string, pos int) (string, int) {
	i := strings.IndexByte(content[pos:], '\n')
	if i < 0 {
		return content[pos:], len(content)
	}
	return content[pos : pos+i], pos + i + 1
}
