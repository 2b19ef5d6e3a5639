package host

import (
	"sync"

	"github.com/wrale/wrale-adplay/api/types/v1alpha1"
)

// Properties is the identity property bag published by the host. It
// implements identity.Surface and is read fresh on every cycle.
type Properties struct {
	mu         sync.RWMutex
	props      v1alpha1.IdentityProperties
	queryParam string
}

// NewProperties creates an empty property bag
func NewProperties() *Properties {
	return &Properties{}
}

// Set replaces the host-published properties
func (p *Properties) Set(props v1alpha1.IdentityProperties) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.props = props
}

// Get returns a copy of the host-published properties
func (p *Properties) Get() v1alpha1.IdentityProperties {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.props
}

// SetQueryParam records the launch query-string override
func (p *Properties) SetQueryParam(v string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queryParam = v
}

// SlotID implements identity.Surface
func (p *Properties) SlotID() (string, bool) {
	return p.field(func(v v1alpha1.IdentityProperties) *string { return v.SlotID })
}

// GroupID implements identity.Surface
func (p *Properties) GroupID() (string, bool) {
	return p.field(func(v v1alpha1.IdentityProperties) *string { return v.GroupID })
}

// HardwareID implements identity.Surface
func (p *Properties) HardwareID() (string, bool) {
	return p.field(func(v v1alpha1.IdentityProperties) *string { return v.HardwareID })
}

// QueryParam implements identity.Surface
func (p *Properties) QueryParam() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.queryParam, p.queryParam != ""
}

func (p *Properties) field(get func(v1alpha1.IdentityProperties) *string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v := get(p.props); v != nil {
		return *v, true
	}
	return "", false
}
