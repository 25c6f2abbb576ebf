package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format identifies a graph file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatHCL  Format = "hcl"
)

var validate = validator.New()

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%w: unsupported extension %q", ErrLoad, filepath.Ext(path))
	}
}

// LoadFile reads a definition from path, choosing the decoder by extension.
func LoadFile(path string) (Definition, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Definition{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	return parse(data, filepath.Base(path), format)
}

// Parse decodes a definition from data.
func Parse(data []byte, format Format) (Definition, error) {
	return parse(data, "graph."+string(format), format)
}

func parse(data []byte, filename string, format Format) (Definition, error) {
	var def Definition
	var err error

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&def)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&def)
	case FormatHCL:
		def, err = decodeHCL(data, filename)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return Definition{}, fmt.Errorf("%w: %s: %v", ErrLoad, filename, err)
	}

	if err := validate.Struct(def); err != nil {
		return Definition{}, fmt.Errorf("%w: %s: %v", ErrLoad, filename, err)
	}
	return def, nil
}

// BuildFile loads and builds the graph at path.
func BuildFile(path string) (*Graph, error) {
	def, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(def)
}
