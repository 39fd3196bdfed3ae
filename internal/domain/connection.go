package domain

// Port is one endpoint of a cable as reported upstream.
// Device is the device name, denormalized for display rather than a key.
type Port struct {
	ID     *int64 `json:"id,omitempty" yaml:"id,omitempty"`
	Name   string `json:"name" yaml:"name"`
	Device string `json:"device" yaml:"device"`
}

// Connection is a cable between two ports.
// ID is a local surrogate assigned on insert; CableID is the upstream cable.
type Connection struct {
	ID      int64 `json:"id" yaml:"id"`
	CableID int64 `json:"cable_id" yaml:"cable_id"`
	PortA   Port  `json:"port_a" yaml:"port_a"`
	PortB   Port  `json:"port_b" yaml:"port_b"`
}

// Endpoints identifies a connection by what it joins, ignoring row identity.
// Two syncs of the same upstream data produce equal Endpoints sets.
type Endpoints struct {
	PortAName   string
	PortBName   string
	PortADevice string
	PortBDevice string
}

// Endpoints returns the identity-free key of the connection
func (c Connection) Endpoints() Endpoints {
	return Endpoints{
		PortAName:   c.PortA.Name,
		PortBName:   c.PortB.Name,
		PortADevice: c.PortA.Device,
		PortBDevice: c.PortB.Device,
	}
}
