// Package shutdown coordinates graceful process termination.
//
// A Handler waits for SIGINT, SIGTERM or a programmatic Trigger, then runs
// cleanup hooks in reverse registration order under a shared deadline.
// Long-running loops take Context or watch Stopping to begin winding down
// as soon as the stop is requested.
package shutdown
