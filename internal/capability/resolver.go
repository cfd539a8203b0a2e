package capability

import "slices"

// Resolution is one service to attach to a component, together with the
// capability subset it was created for.
type Resolution struct {
	Kind         ServiceKind
	Capabilities []string
}

// Resolve maps a component's declared capabilities to the ordered list of
// services that should be attached to it.
//
// Single-capability services are emitted in catalog order, each bound to its
// one capability. If the set contains a combination trigger (switch or
// thermostatMode) exactly one more service is emitted from the first matching
// combination rule, falling back to a plain switch, bound to the full set.
//
// Unknown capabilities are ignored. Resolution is pure and never fails; an
// unsupported set yields an empty result.
func Resolve(capabilities []string) []Resolution {
	present := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		present[c] = struct{}{}
	}

	var out []Resolution
	for _, rule := range SingleCapabilities {
		if _, ok := present[rule.Capability]; ok {
			out = append(out, Resolution{
				Kind:         rule.Kind,
				Capabilities: []string{rule.Capability},
			})
		}
	}

	if hasAny(present, comboTriggers) {
		out = append(out, Resolution{
			Kind:         ResolveCombination(capabilities),
			Capabilities: slices.Clone(capabilities),
		})
	}

	return out
}

// ResolveCombination returns the service kind of the first combination rule
// whose required capabilities are all present, or KindSwitch if none match.
func ResolveCombination(capabilities []string) ServiceKind {
	present := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		present[c] = struct{}{}
	}

	for _, rule := range ComboCapabilities {
		if hasAll(present, rule.Requires) {
			return rule.Kind
		}
	}
	return KindSwitch
}

// IsCapabilitySupported reports whether a capability on its own causes at
// least one service to be attached.
func IsCapabilitySupported(capability string) bool {
	if _, ok := singleByCapability[capability]; ok {
		return true
	}
	return slices.Contains(comboTriggers, capability)
}

// IsComponentSupported reports whether Resolve would attach any service for
// the given capability set.
func IsComponentSupported(capabilities []string) bool {
	return slices.ContainsFunc(capabilities, IsCapabilitySupported)
}

// IsDeviceSupported reports whether at least one of the given component
// capability sets resolves to a service. Devices for which this is false are
// not turned into accessories.
func IsDeviceSupported(components [][]string) bool {
	return slices.ContainsFunc(components, IsComponentSupported)
}

func hasAll(present map[string]struct{}, required []string) bool {
	for _, c := range required {
		if _, ok := present[c]; !ok {
			return false
		}
	}
	return true
}

func hasAny(present map[string]struct{}, candidates []string) bool {
	for _, c := range candidates {
		if _, ok := present[c]; ok {
			return true
		}
	}
	return false
}
