package domain

// DefaultRegionColor is the translucent gray used when a region has no color
const DefaultRegionColor = "#b8b8b853"

// Region is a rectangular area on the topology canvas
type Region struct {
	ID     int64   `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Color  string  `json:"color" yaml:"color"`
}

// RegionInput is a client-authored region. A nil ID asks the store to assign one.
type RegionInput struct {
	ID     *int64  `json:"id,omitempty"`
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Color  string  `json:"color,omitempty"`
}

// ApplyDefaults fills in the default color
func (r *Region) ApplyDefaults() {
	if r.Color == "" {
		r.Color = DefaultRegionColor
	}
}

// Region converts the input to a region with defaults applied.
// The ID is left zero when the input carries none.
func (in RegionInput) Region() Region {
	r := Region{
		Name:   in.Name,
		X:      in.X,
		Y:      in.Y,
		Width:  in.Width,
		Height: in.Height,
		Color:  in.Color,
	}
	if in.ID != nil {
		r.ID = *in.ID
	}
	r.ApplyDefaults()
	return r
}
