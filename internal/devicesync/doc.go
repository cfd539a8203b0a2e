// Package devicesync keeps a remote device's local view consistent with the cloud.
//
// One Engine exists per device and is shared by all of that device's
// services. It provides:
//
//   - RefreshStatus: cached status reads with a freshness window; concurrent
//     callers coalesce onto one remote call (singleflight).
//   - SendCommand: strictly serialised single-command batches that never
//     overlap a status read (weighted semaphore of size one).
//   - An Online/Offline state machine: consecutive status-read failures
//     mark the device offline; only a successful health check, attempted
//     at most once per grace period, brings it back.
//   - StartPolling: jittered periodic reads that back off around commands
//     and are disabled entirely when a push-event channel is configured.
//
// # State machine
//
//	Online --(N consecutive read failures)--> Offline(giveUpAt)
//	Offline --(grace elapsed, check ONLINE)--> Online (failures reset)
//	Offline --(grace elapsed, check fails)--> Offline(giveUpAt = now)
//
// Command failures never change the state. While Offline, status reads and
// commands are refused without a remote call.
package devicesync
