/*
Package events provides an in-memory broker for lifecycle events.

Shutdown hooks and monitoring integrations subscribe to the broker and
receive every event the orchestrator publishes along the termination
lifecycle (termination.detected, drain.*, checkpoint.*, replacement.*,
session.*). Publishing is non-blocking: events flow through a buffered
channel and a subscriber whose buffer is full misses events rather
than stalling the reaction sequence.

	sub := orch.Events().Subscribe()
	go func() {
		for ev := range sub {
			if ev.Type == events.EventTerminationDetected {
				httpServer.SetKeepAlivesEnabled(false)
			}
		}
	}()
*/
package events
