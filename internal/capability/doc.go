// Package capability resolves cloud device capabilities into accessory services.
//
// A remote device reports a set of capability tags per component (e.g.
// "switch", "switchLevel", "battery"). Tags carry no behaviour on their own;
// this package assigns meaning to them through two explicit ordered tables:
//
//   - SingleCapabilities: one capability → one service kind. Order is
//     load-bearing: primary services (door, lock, shade) are listed before
//     auxiliary ones (contact sensor, battery) so they register first.
//   - ComboCapabilities: a required capability subset → one service kind,
//     scanned first-match-wins. Specific combinations (switch + fanSpeed +
//     switchLevel) precede general ones (switch alone).
//
// # Usage
//
//	for _, r := range capability.Resolve(component.CapabilityIDs()) {
//	    fmt.Println(r.Kind, r.Capabilities)
//	}
//
// Discovery uses IsDeviceSupported, which is derived from the same tables as
// Resolve so the two can never disagree about whether a device yields services.
package capability
