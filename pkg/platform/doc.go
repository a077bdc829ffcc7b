/*
Package platform abstracts the scheduler hosting the protected workload.

The Drainer contract covers the three things termination handling needs
from a platform: gracefully drain the dying node, report cluster state,
and scale the pool for replacement capacity. All three are best-effort
booleans; platform unavailability is never an error.

Built-in platforms:

	instance  a lone instance with no scheduler; drain runs registered
	          callbacks and sets SPOT_SDK_TERMINATING for the local
	          process, scale always fails
	remote    an external controller reached over a small JSON HTTP API
	          (POST /v1/drain, POST /v1/scale, GET /v1/state)
	noop      accepts everything, for workloads that react to lifecycle
	          events themselves

Custom schedulers register a factory:

	handle := platform.Register("ray", newRayPlatform)
	defer handle.Unregister()
*/
package platform
