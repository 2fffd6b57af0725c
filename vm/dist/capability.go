package dist

import (
	"fmt"

	"github.com/chazu/bcsnap/snapshot"
)

// CapabilityPolicy controls which feature flags a received snapshot may
// require. A nil AllowedCapabilities means "allow all".
type CapabilityPolicy struct {
	AllowedCapabilities map[string]bool // nil = allow all
	DeniedCapabilities  map[string]bool
	MaxEngineVersion    uint8 // 0 = any
}

// NewPermissivePolicy creates a policy that allows all capabilities.
func NewPermissivePolicy() *CapabilityPolicy {
	return &CapabilityPolicy{}
}

// NewRestrictedPolicy creates a policy that only allows the specified
// capabilities.
func NewRestrictedPolicy(allowed []string) *CapabilityPolicy {
	m := make(map[string]bool, len(allowed))
	for _, c := range allowed {
		m[c] = true
	}
	return &CapabilityPolicy{AllowedCapabilities: m}
}

// NewEnginePolicy admits exactly what eng can restore.
func NewEnginePolicy(eng snapshot.Engine) *CapabilityPolicy {
	p := NewRestrictedPolicy(eng.Features.Names())
	p.MaxEngineVersion = eng.Version
	return p
}

// Check verifies that all capabilities required by a manifest are allowed
// by this policy. Returns an error listing any denied capabilities.
func (p *CapabilityPolicy) Check(manifest *CapabilityManifest) error {
	if manifest == nil {
		return nil
	}
	for _, cap := range manifest.Required {
		if p.DeniedCapabilities != nil && p.DeniedCapabilities[cap] {
			return fmt.Errorf("dist: capability %q is explicitly denied", cap)
		}
		if p.AllowedCapabilities != nil && !p.AllowedCapabilities[cap] {
			return fmt.Errorf("dist: capability %q is not allowed", cap)
		}
	}
	return nil
}

// CheckPackage applies the policy to a package's features and required
// engine version.
func (p *CapabilityPolicy) CheckPackage(pkg *Package) error {
	if p.MaxEngineVersion != 0 && pkg.EngineVersion > p.MaxEngineVersion {
		return fmt.Errorf("dist: package requires engine %d, policy allows %d", pkg.EngineVersion, p.MaxEngineVersion)
	}
	return p.Check(pkg.Manifest())
}

// Deny adds a capability to the deny list.
func (p *CapabilityPolicy) Deny(cap string) {
	if p.DeniedCapabilities == nil {
		p.DeniedCapabilities = make(map[string]bool)
	}
	p.DeniedCapabilities[cap] = true
}
