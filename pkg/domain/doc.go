// Package domain defines the core types shared by every AgentShield
// component: threat verdicts, the per-request context threaded through the
// execution chain, adversarial trial definitions, simulation reports, and
// the orchestrator's event payloads.
//
// The package is pure data. Detection engines, the execution chain,
// storage and transport all depend on these types; nothing here depends
// back on them. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
