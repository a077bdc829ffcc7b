/*
Package detector polls cloud provider metadata for termination notices.

Each provider exposes an instance-local, unauthenticated metadata
endpoint that announces impending spot/preemptible reclaims. The
detector package implements one poller per provider plus a caching
decorator that bounds the metadata request rate.

# Detection Contract

Check returns a *types.TerminationNotice and nothing else. Absence of a
signal and failure to reach the metadata service are deliberately
indistinguishable to callers: both read as nil. Detection errors are
logged at debug level and swallowed, because transient metadata
hiccups must never trigger the reaction sequence.

Every probe is bounded by the caller's context; the built-in detectors
also carry their own request timeout (2s by default).

# Providers

	aws    IMDSv2: PUT /latest/api/token, then
	       GET /latest/meta-data/spot/instance-action
	gcp    GET /computeMetadata/v1/instance/preempted
	       (Metadata-Flavor: Google), body "TRUE" on reclaim
	azure  GET /metadata/scheduledevents?api-version=2020-07-01
	       (Metadata: true), Preempt/Terminate events

The provider set is closed. Anything beyond the built-ins is installed
explicitly:

	handle := detector.Register("mycloud", func(cfg *config.SpotConfig) (detector.Detector, error) {
		return newMyCloudDetector(cfg), nil
	})
	defer handle.Unregister()

# Caching

NewCached wraps any detector with a single-slot cache (5s TTL by
default) so that aggressive poll intervals do not hammer the metadata
service. A cached positive notice is served for the remainder of its
TTL window.
*/
package detector
