// Package codec renders the mirror snapshot in downloadable formats.
package codec

import (
	"fmt"
	"io"

	"netmirror/internal/domain"
)

// Exporter writes a snapshot in one format
type Exporter interface {
	Export(snapshot *domain.Snapshot, w io.Writer) error
	Format() string
	ContentType() string
}

// ForFormat returns the exporter registered under name
func ForFormat(name string) (Exporter, error) {
	switch name {
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", name)
	}
}
