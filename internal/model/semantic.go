package model

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// LanguagePython is the only language the extractor produces.
const LanguagePython = "python"

// DocumentSemantics is one source file's definitions and references.
type DocumentSemantics struct {
	RelativePath string             `json:"relative_path" yaml:"relative_path"`
	Language     string             `json:"language" yaml:"language"`
	Definitions  []SymbolDefinition `json:"definitions" yaml:"definitions"`
	References   []SymbolReference  `json:"references" yaml:"references"`
}

// NewDocument returns an empty, well-formed document for relPath.
func NewDocument(relPath string) DocumentSemantics {
	return DocumentSemantics{
		RelativePath: relPath,
		Language:     LanguagePython,
		Definitions:  []SymbolDefinition{},
		References:   []SymbolReference{},
	}
}

// SemanticData is the project-level record.
type SemanticData struct {
	ProjectRoot     string              `json:"project_root" yaml:"project_root"`
	Documents       []DocumentSemantics `json:"documents" yaml:"documents"`
	ExternalSymbols []SymbolDefinition  `json:"external_symbols" yaml:"external_symbols"`
}

// Normalize replaces nil collections with empty ones so the encoded form
// never contains null lists.
func (s *SemanticData) Normalize() {
	if s.Documents == nil {
		s.Documents = []DocumentSemantics{}
	}
	if s.ExternalSymbols == nil {
		s.ExternalSymbols = []SymbolDefinition{}
	}
	for i := range s.Documents {
		doc := &s.Documents[i]
		if doc.Language == "" {
			doc.Language = LanguagePython
		}
		if doc.Definitions == nil {
			doc.Definitions = []SymbolDefinition{}
		}
		if doc.References == nil {
			doc.References = []SymbolReference{}
		}
		normalizeDefinitions(doc.Definitions)
	}
	normalizeDefinitions(s.ExternalSymbols)
}

func normalizeDefinitions(defs []SymbolDefinition) {
	for i := range defs {
		if defs[i].Documentation == nil {
			defs[i].Documentation = []string{}
		}
		if defs[i].Details.v != nil {
			defs[i].Details.v.normalize()
		}
	}
}

// Definitions returns every project definition in document order.
func (s *SemanticData) Definitions() []SymbolDefinition {
	var out []SymbolDefinition
	for _, doc := range s.Documents {
		out = append(out, doc.Definitions...)
	}
	return out
}

// References returns every reference in document order.
func (s *SemanticData) References() []SymbolReference {
	var out []SymbolReference
	for _, doc := range s.Documents {
		out = append(out, doc.References...)
	}
	return out
}

// Document returns the document for relPath.
func (s *SemanticData) Document(relPath string) (*DocumentSemantics, bool) {
	for i := range s.Documents {
		if s.Documents[i].RelativePath == relPath {
			return &s.Documents[i], true
		}
	}
	return nil, false
}

// DefinitionByID finds a project or external definition.
func (s *SemanticData) DefinitionByID(id string) (*SymbolDefinition, bool) {
	for i := range s.Documents {
		for j := range s.Documents[i].Definitions {
			if s.Documents[i].Definitions[j].SymbolID == id {
				return &s.Documents[i].Definitions[j], true
			}
		}
	}
	for i := range s.ExternalSymbols {
		if s.ExternalSymbols[i].SymbolID == id {
			return &s.ExternalSymbols[i], true
		}
	}
	return nil, false
}

// Stats summarizes a project record.
type Stats struct {
	Documents   int                   `json:"documents"`
	Definitions int                   `json:"definitions"`
	References  int                   `json:"references"`
	Unresolved  int                   `json:"unresolved"`
	Externals   int                   `json:"externals"`
	ByKind      map[SymbolKind]int    `json:"by_kind"`
	ByRole      map[ReferenceRole]int `json:"by_role"`
}

// Stats counts definitions and references.
func (s *SemanticData) Stats() Stats {
	st := Stats{
		Documents: len(s.Documents),
		Externals: len(s.ExternalSymbols),
		ByKind:    make(map[SymbolKind]int),
		ByRole:    make(map[ReferenceRole]int),
	}
	for _, doc := range s.Documents {
		for _, d := range doc.Definitions {
			st.Definitions++
			st.ByKind[d.Kind]++
		}
		for _, r := range doc.References {
			st.References++
			st.ByRole[r.Role]++
			if !r.Resolved() {
				st.Unresolved++
			}
		}
	}
	return st
}

// Format selects the encoding of a project record.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json or yaml)", s)
	}
}

// Encode writes data in the given format. Collections are normalized first.
func Encode(w io.Writer, data *SemanticData, format Format) error {
	data.Normalize()
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// Decode reads a project record in the given format.
func Decode(r io.Reader, format Format) (*SemanticData, error) {
	var data SemanticData
	switch format {
	case FormatJSON, "":
		if err := json.NewDecoder(r).Decode(&data); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&data); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}
	data.Normalize()
	return &data, nil
}
