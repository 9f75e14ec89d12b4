// Package policy evaluates tool-call authorizations against embedded
// Rego modules. It backs the tool validation stage: the stage's static
// allowlist and danger patterns only audit, while a deny decision from
// this engine escalates the run to blocked.
//
// Policies receive the tool name, the run's domain and effective input,
// and the guard verdict, so a module can gate tools on threat score as
// well as on identity.
package policy
