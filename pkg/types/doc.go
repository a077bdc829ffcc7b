/*
Package types defines the core data structures shared across the agent.

This package contains the domain model for spot termination handling:
termination notices, instance metadata, checkpoint records, cluster
state snapshots, replacement contexts and results, the session state
machine, and the stage error taxonomy. All other packages depend on it
and it depends on nothing but the standard library.

The central immutability rules live here: a TerminationNotice is never
mutated after detection, a CheckpointRecord is never overwritten, and
a ReplacementContext is built fresh per replacement attempt.
*/
package types
