// Package accessory exposes remote devices as sets of semantic services.
//
// An Accessory owns one devicesync.Engine shared by all of its services.
// AddComponent resolves a component's capabilities into services through the
// capability package; push events reach a service through the Router, which
// matches on component and capability subset. Service values, from polling
// or events, go to a StatePublisher.
//
// SQLiteStore remembers which accessories were registered so discovery can
// restore, add or remove them on the next start.
package accessory
