package ingest

import (
	"embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/markers.yaml
var markersYAML embed.FS

// MarkerCategory is one row of the wealth-marker table.
type MarkerCategory struct {
	Name     string   `yaml:"name"`
	Label    string   `yaml:"label"`
	Delta    int      `yaml:"delta"`
	Counted  bool     `yaml:"counted,omitempty"`
	Literal  bool     `yaml:"literal,omitempty"`
	Patterns []string `yaml:"patterns"`

	compiled []*regexp.Regexp
}

// MarkerTable holds the categories in scoring order.
type MarkerTable struct {
	Categories []MarkerCategory `yaml:"categories"`
}

// LoadMarkers reads marker tables from path, or the embedded defaults when path is empty.
func LoadMarkers(path string) (*MarkerTable, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = markersYAML.ReadFile("config/markers.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read markers: %w", err)
	}

	var t MarkerTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse markers: %w", err)
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

// DefaultMarkers returns the embedded tables and panics if they are broken.
func DefaultMarkers() *MarkerTable {
	t, err := LoadMarkers("")
	if err != nil {
		panic(err)
	}
	return t
}

func (t *MarkerTable) compile() error {
	if len(t.Categories) == 0 {
		return fmt.Errorf("markers: no categories defined")
	}
	for i := range t.Categories {
		c := &t.Categories[i]
		if c.Label == "" {
			return fmt.Errorf("markers: category %q has no label", c.Name)
		}
		c.compiled = nil
		for j, p := range c.Patterns {
			if c.Literal {
				c.Patterns[j] = strings.ToLower(p)
				continue
			}
			// content is lower-cased; match case-insensitively instead of
			// rewriting the pattern, which would turn \S into \s
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return fmt.Errorf("markers: category %q pattern %q: %w", c.Name, p, err)
			}
			c.compiled = append(c.compiled, re)
		}
	}
	return nil
}

// matches counts the distinct patterns found in the case-folded content.
func (c *MarkerCategory) matches(content string) int {
	n := 0
	if c.Literal {
		for _, p := range c.Patterns {
			if strings.Contains(content, p) {
				n++
			}
		}
		return n
	}
	for _, re := range c.compiled {
		if re.MatchString(content) {
			n++
		}
	}
	return n
}

func (c *MarkerCategory) detail(n int) string {
	if c.Counted {
		return fmt.Sprintf("%s (%d)", c.Label, n)
	}
	return c.Label
}
