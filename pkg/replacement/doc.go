/*
Package replacement implements capacity recovery strategies.

When an instance is reclaimed, the configured strategy decides how its
capacity comes back:

	elastic_scale       scale the pool out and wait for new nodes to
	                    join (the default)
	checkpoint_restore  elastic scale, but a checkpoint is secured
	                    first and its ID travels with the launch so the
	                    replacement resumes from saved state
	migration           move work onto surviving healthy nodes instead
	                    of launching anything

Each Execute call is one attempt against one termination event; the
orchestrator owns retries and passes a fresh ReplacementContext per
attempt. Strategies report through ReplacementResult and never panic
on platform failure.
*/
package replacement
