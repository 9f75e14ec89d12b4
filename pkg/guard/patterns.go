package guard

import "regexp"

// universalRules covers known injection phrasings regardless of domain.
// Order matters only for label ordering in the verdict; every matching
// rule contributes.
var universalRules = []compiledRule{
	{name: "direct_override", expr: regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions?`), weight: 0.9},
	{name: "direct_override", expr: regexp.MustCompile(`(?i)disregard\s+(your|all|previous)\s+`), weight: 0.9},
	{name: "jailbreak_persona", expr: regexp.MustCompile(`(?i)you\s+are\s+(now\s+)?(DAN|an?\s+AI\s+without|uncensored)`), weight: 0.9},
	{name: "system_prompt_leak", expr: regexp.MustCompile(`(?i)(show|reveal|print|display|repeat)\s+(me\s+)?(your|the)\s+system\s+prompt`), weight: 0.95},
	{name: "data_enumeration", expr: regexp.MustCompile(`(?i)list\s+all\s+(patients?|users?|accounts?|records?)`), weight: 0.85},
	{name: "cross_session_leak", expr: regexp.MustCompile(`(?i)what\s+did\s+(the\s+)?(previous|last|other)\s+(patient|user)\s+ask`), weight: 0.85},
	{name: "fake_system_tag", expr: regexp.MustCompile(`(?i)\[SYSTEM\]|\[ADMIN\]|\[ROOT\]`), weight: 0.8},
	{name: "persona_override", expr: regexp.MustCompile(`(?i)(act|pretend|behave)\s+as\s+(if\s+)?(you\s+are|you're|you were)`), weight: 0.7},
	{name: "encoding_attack", expr: regexp.MustCompile(`(?i)base64|b64decode|atob\(`), weight: 0.75},
	{name: "hypothetical_jailbreak", expr: regexp.MustCompile(`(?i)for\s+(educational|research|hypothetical)\s+purposes?.*prescri`), weight: 0.8},
}

// structuralRules flag signals independent of wording.
var structuralRules = []compiledRule{
	{name: "delimiter_injection", expr: regexp.MustCompile(`-{3,}|={3,}|\*{3,}`), weight: 0.6},
	{name: "json_role_injection", expr: regexp.MustCompile(`\{[\s\S]*?["']role["']\s*:\s*["']system["']`), weight: 0.9},
	{name: "excessive_newlines", expr: regexp.MustCompile(`(\n\s*){5,}`), weight: 0.4},
	{name: "fake_chat_marker", expr: regexp.MustCompile(`(?i)SYSTEM:|ASSISTANT:|USER:`), weight: 0.7},
}

// base64Token matches blobs long enough to plausibly hide a payload.
var base64Token = regexp.MustCompile(`[A-Za-z0-9+/]{20,}={0,2}`)

// encodedDangerWords are checked against decoded base64 content.
var encodedDangerWords = []string{"ignore", "system", "admin", "override", "prompt", "password"}

var (
	fakeTagPattern   = regexp.MustCompile(`(?i)\[(SYSTEM|ADMIN|ROOT)\]`)
	dashRunPattern   = regexp.MustCompile(`-{3,}`)
	equalsRunPattern = regexp.MustCompile(`={3,}`)
)
