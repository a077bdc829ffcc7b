/*
Package log provides structured logging built on zerolog.

Init configures the global logger once at startup (JSON for production,
console for interactive use). Helper constructors attach the common
context fields:

	log.WithComponent("detector").Info().Msg("polling started")
	log.WithSession(sessionID).Warn().Msg("termination detected")
	log.WithCheckpointID(id).Debug().Msg("record pruned")
*/
package log
