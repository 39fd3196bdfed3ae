package upstream

// NamedRef is a nested object reference that carries a display name
type NamedRef struct {
	ID   *int64 `json:"id,omitempty"`
	Name string `json:"name"`
}

// DeviceRecord is one element of the dcim/devices collection
type DeviceRecord struct {
	ID   int64     `json:"id"`
	Name string    `json:"name"`
	Role *NamedRef `json:"role,omitempty"`
}

// TerminationObject is the port a cable end lands on
type TerminationObject struct {
	ID     *int64    `json:"id,omitempty"`
	Name   *string   `json:"name,omitempty"`
	Device *NamedRef `json:"device,omitempty"`
}

// Termination is one entry of a cable's a/b termination list
type Termination struct {
	ObjectType string             `json:"object_type,omitempty"`
	ObjectID   *int64             `json:"object_id,omitempty"`
	Object     *TerminationObject `json:"object,omitempty"`
}

// CableRecord is one element of the dcim/cables collection.
// Malformed is set instead of failing the collection when an element
// does not decode; ID is then filled in if it could still be read.
type CableRecord struct {
	ID            *int64        `json:"id"`
	ATerminations []Termination `json:"a_terminations"`
	BTerminations []Termination `json:"b_terminations"`

	Malformed error `json:"-"`
}

// SiteRecord is one element of the dcim/sites collection
type SiteRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
