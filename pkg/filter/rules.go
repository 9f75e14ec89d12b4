package filter

import "regexp"

// universalRules cover sensitive-data classes independent of domain.
// Replacement tokens must never re-match any rule here or the pipeline
// loses idempotence.
var universalRules = []compiledRule{
	{name: "ssn", expr: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), replacement: "[SSN_REDACTED]"},
	{name: "credit_card", expr: regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`), replacement: "[CC_REDACTED]"},
	{name: "email", expr: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), replacement: "[EMAIL_REDACTED]"},
	{name: "phone", expr: regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), replacement: "[PHONE_REDACTED]"},
	{name: "api_key", expr: regexp.MustCompile(`\b(?:sk-|gsk_|GROQ_|OPENAI_API_KEY|API_KEY)[A-Za-z0-9_-]{10,}\b`), replacement: "[API_KEY_REDACTED]"},
	{name: "env_var", expr: regexp.MustCompile(`os\.environ\[[^\[\]]*\]|os\.getenv\([^()]*\)|os\.Getenv\([^()]*\)`), replacement: "[ENV_VAR_REDACTED]"},
}

// leakRules detect structure leaking from inside the pipeline: echoed
// system prompts, serialized internal state, session identifiers, and
// references implying knowledge of another session.
var leakRules = []compiledRule{
	{name: "system_prompt_echo", expr: regexp.MustCompile(`(?i)(?:system\s+prompt|instructions?\s+(?:are|is))\s*[:=]`), replacement: "[SYSTEM_PROMPT_ECHO_REDACTED]"},
	{name: "internal_state_leak", expr: regexp.MustCompile(`(?i)AgentState\{`), replacement: "[INTERNAL_STATE_LEAK_REDACTED]"},
	{name: "session_id_leak", expr: regexp.MustCompile(`(?i)\b(?:thread_id|session_id)\s*[:=]`), replacement: "[SESSION_ID_LEAK_REDACTED]"},
	{name: "cross_session_leak", expr: regexp.MustCompile(`(?i)(?:previous|other)\s+(?:user|patient|client)\s+(?:asked|said|requested)`), replacement: "[CROSS_SESSION_LEAK_REDACTED]"},
}
