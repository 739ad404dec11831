// Package lifecycle runs the ordered procedures that keep the MQTT session
// consistent across suspend, resume and shutdown.
//
// Suspend stops the metrics task, publishes "Suspended", drains pending
// publishes, disconnects, and only then releases the sleep inhibitor, so
// the machine waits for the cleanup but is never held up by a failure in
// it. Resume rebuilds the session, the logind connection and the sleep
// inhibitor, each with bounded exponential backoff. Shutdown releases the
// shutdown inhibitor first, then runs the same publish/drain/disconnect
// sequence with "Off".
//
// Every step is logged and recovered; no step can stop the ones after it.
// Handlers are serialised: a second event waits for the first to finish.
package lifecycle
