package printer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Style controls how modules are rendered.
type Style struct {
	// Indent is the number of spaces per nesting level.
	Indent int `yaml:"indent"`

	// ShowTypes prints the inferred type of every binding.
	ShowTypes bool `yaml:"show_types"`
}

// DefaultStyle is used when no style file is present.
var DefaultStyle = Style{Indent: 2}

// StyleFileName is the per-directory style configuration file.
const StyleFileName = ".tensir.yaml"

// LoadStyle reads a style from a yaml file. A missing file yields the
// default style; a malformed file is an error.
func LoadStyle(path string) (Style, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultStyle, nil
	}
	if err != nil {
		return Style{}, fmt.Errorf("reading style file %s: %w", path, err)
	}
	style := DefaultStyle
	if err := yaml.Unmarshal(data, &style); err != nil {
		return Style{}, fmt.Errorf("parsing style file %s: %w", path, err)
	}
	if style.Indent <= 0 {
		style.Indent = DefaultStyle.Indent
	}
	return style, nil
}
