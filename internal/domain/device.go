package domain

// DefaultRole is assigned when the upstream device carries no role
const DefaultRole = "unknown"

// Device is a piece of equipment mirrored from the upstream inventory
type Device struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Role string `json:"role" yaml:"role"`
}

// NewDevice creates a device, substituting DefaultRole for an empty role
func NewDevice(id int64, name, role string) Device {
	if role == "" {
		role = DefaultRole
	}
	return Device{ID: id, Name: name, Role: role}
}
