package semindex

import (
	"io"

	"github.com/jward/semindex/internal/model"
)

// Output formats for Encode and Decode.
const (
	FormatJSON = model.FormatJSON
	FormatYAML = model.FormatYAML
)

// ParseFormat validates a format name ("json" or "yaml").
func ParseFormat(s string) (Format, error) {
	return model.ParseFormat(s)
}

// Encode writes a project record in the given format.
func Encode(w io.Writer, data *SemanticData, format Format) error {
	return model.Encode(w, data, format)
}

// Decode reads a project record written by Encode.
func Decode(r io.Reader, format Format) (*SemanticData, error) {
	return model.Decode(r, format)
}
