package domain

// Snapshot is the complete mirror at one point in time
type Snapshot struct {
	Devices     []Device     `json:"devices" yaml:"devices"`
	Positions   []Position   `json:"positions" yaml:"positions"`
	Connections []Connection `json:"connections" yaml:"connections"`
	Regions     []Region     `json:"regions" yaml:"regions"`
}

// NewSnapshot creates an empty snapshot with non-nil collections
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Devices:     make([]Device, 0),
		Positions:   make([]Position, 0),
		Connections: make([]Connection, 0),
		Regions:     make([]Region, 0),
	}
}

// EndpointSet returns the multiset of connection endpoints
func (s *Snapshot) EndpointSet() map[Endpoints]int {
	set := make(map[Endpoints]int, len(s.Connections))
	for _, c := range s.Connections {
		set[c.Endpoints()]++
	}
	return set
}

// PositionMap keys positions by device ID
func (s *Snapshot) PositionMap() map[int64]Point {
	m := make(map[int64]Point, len(s.Positions))
	for _, p := range s.Positions {
		m[p.DeviceID] = p.Point()
	}
	return m
}
