package service

import (
	"netmirror/internal/domain"
	"netmirror/internal/upstream"
)

// Site regions are laid out left to right in fetch order
const (
	regionOriginX = 50
	regionOriginY = 50
	regionStride  = 550
	regionWidth   = 500
	regionHeight  = 400
	regionColor   = "#ccffcc"
)

// NormalizeDevice maps an upstream device, defaulting a missing role
func NormalizeDevice(rec upstream.DeviceRecord) domain.Device {
	role := domain.DefaultRole
	if rec.Role != nil && rec.Role.Name != "" {
		role = rec.Role.Name
	}
	return domain.NewDevice(rec.ID, rec.Name, role)
}

// NormalizeCable maps the first termination on each side of a cable.
// It reports false for a record that failed to decode or has no id, and
// when either side is empty or carries no object.
func NormalizeCable(rec upstream.CableRecord) (domain.Connection, bool) {
	if rec.Malformed != nil || rec.ID == nil {
		return domain.Connection{}, false
	}
	if len(rec.ATerminations) == 0 || len(rec.BTerminations) == 0 {
		return domain.Connection{}, false
	}
	a, b := rec.ATerminations[0].Object, rec.BTerminations[0].Object
	if a == nil || b == nil {
		return domain.Connection{}, false
	}
	return domain.Connection{
		CableID: *rec.ID,
		PortA:   normalizePort(a),
		PortB:   normalizePort(b),
	}, true
}

func normalizePort(obj *upstream.TerminationObject) domain.Port {
	port := domain.Port{}
	if obj.ID != nil {
		id := *obj.ID
		port.ID = &id
	}
	if obj.Name != nil {
		port.Name = *obj.Name
	}
	if obj.Device != nil {
		port.Device = obj.Device.Name
	}
	return port
}

// NormalizeSite places the k-th site (zero-based) as a region
func NormalizeSite(k int, rec upstream.SiteRecord) domain.Region {
	return domain.Region{
		ID:     rec.ID,
		Name:   rec.Name,
		X:      float64(regionOriginX + k*regionStride),
		Y:      regionOriginY,
		Width:  regionWidth,
		Height: regionHeight,
		Color:  regionColor,
	}
}
