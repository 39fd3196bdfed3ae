package codec

import (
	"fmt"
	"io"

	"netmirror/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// ContentType returns the MIME type of the export
func (c *YAMLCodec) ContentType() string {
	return "application/yaml"
}

// yamlSnapshot represents the YAML structure for the mirror
type yamlSnapshot struct {
	Devices     []domain.Device  `yaml:"devices"`
	Positions   map[int64]yamlXY `yaml:"positions,omitempty"`
	Connections []yamlConnection `yaml:"connections"`
	Regions     []domain.Region  `yaml:"regions"`
}

type yamlXY struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type yamlConnection struct {
	CableID int64       `yaml:"cable_id"`
	A       domain.Port `yaml:"a"`
	B       domain.Port `yaml:"b"`
}

// Export writes the snapshot as YAML
func (c *YAMLCodec) Export(snapshot *domain.Snapshot, w io.Writer) error {
	ys := yamlSnapshot{
		Devices:     snapshot.Devices,
		Connections: make([]yamlConnection, 0, len(snapshot.Connections)),
		Regions:     snapshot.Regions,
	}
	if len(snapshot.Positions) > 0 {
		ys.Positions = make(map[int64]yamlXY, len(snapshot.Positions))
		for _, p := range snapshot.Positions {
			ys.Positions[p.DeviceID] = yamlXY{X: p.X, Y: p.Y}
		}
	}
	for _, conn := range snapshot.Connections {
		ys.Connections = append(ys.Connections, yamlConnection{
			CableID: conn.CableID,
			A:       conn.PortA,
			B:       conn.PortB,
		})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(ys); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
