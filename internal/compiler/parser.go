package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/troupe/pkg/machine"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a machine description.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported machine file extension %q", filepath.Ext(path))
}

// Parser is responsible for converting raw bytes into a MachineConfig.
type Parser struct {
	strict bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithStrict rejects unknown keys.
func WithStrict() ParserOption {
	return func(p *Parser) { p.strict = true }
}

// NewParser creates a new parser instance.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse decodes a machine description.
func (p *Parser) Parse(data []byte, format Format) (*machine.MachineConfig, error) {
	var cfg machine.MachineConfig
	switch format {
	case FormatYAML, "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(p.strict)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse machine: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if p.strict {
			dec.DisallowUnknownFields()
		}
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse machine: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if cfg.ID == "" && len(cfg.States.Keys()) == 0 && cfg.Type == "" {
		return nil, fmt.Errorf("machine description is empty")
	}
	return &cfg, nil
}

// ParseFile reads and decodes a machine file, choosing the format by extension.
// A machine without an id takes the file name.
func (p *Parser) ParseFile(path string) (*machine.MachineConfig, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine file: %w", err)
	}
	cfg, err := p.Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.ID == "" {
		cfg.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return cfg, nil
}

// Parse decodes data with a default parser.
func Parse(data []byte, format Format) (*machine.MachineConfig, error) {
	return NewParser().Parse(data, format)
}

// ParseFile decodes a file with a default parser.
func ParseFile(path string) (*machine.MachineConfig, error) {
	return NewParser().ParseFile(path)
}
