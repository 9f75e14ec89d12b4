// Package engine assembles protective middleware stages into a
// continuation-passing execution chain and drives agent invocations
// through it.
//
// Each stage receives the shared request context together with an explicit
// continuation for the remainder of the chain. A stage may mutate the
// context and delegate, refuse to call the continuation at all (blocking
// the run before the agent sees the input), or act on whatever the
// continuation produced on the way back out. The Shield orchestrator owns
// the default chain, the incident audit trail and the event boundary
// around each run.
package engine
