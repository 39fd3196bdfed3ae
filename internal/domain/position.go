package domain

// Position is the canvas placement of a device, keyed by device ID
type Position struct {
	DeviceID int64   `json:"device_id" yaml:"device_id"`
	X        float64 `json:"x" yaml:"x"`
	Y        float64 `json:"y" yaml:"y"`
}

// Point is the wire shape of a position in the positions API
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NewPosition creates a position for a device
func NewPosition(deviceID int64, x, y float64) Position {
	return Position{DeviceID: deviceID, X: x, Y: y}
}

// Point returns the coordinates without the device key
func (p Position) Point() Point {
	return Point{X: p.X, Y: p.Y}
}
