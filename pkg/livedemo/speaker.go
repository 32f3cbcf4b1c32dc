package livedemo

import "strings"

// DefaultAssistantName is the display name the voice agent joins with.
const DefaultAssistantName = "Vaani"

// Speaker attributes a conversation entry.
type Speaker int

const (
	Human Speaker = iota
	Agent
)

func (s Speaker) String() string {
	if s == Agent {
		return "agent"
	}
	return "human"
}

// ClassifySpeaker reports Agent when any of the participant's metadata says so:
// the explicit flag, an identity containing "agent", or a display name containing
// the assistant name. Both substring checks ignore case. Anything else is Human.
func ClassifySpeaker(p *Participant, assistantName string) Speaker {
	if p == nil {
		return Human
	}
	if p.IsAgent {
		return Agent
	}
	if strings.Contains(strings.ToLower(p.Identity), "agent") {
		return Agent
	}
	if assistantName != "" && strings.Contains(strings.ToLower(p.Name), strings.ToLower(assistantName)) {
		return Agent
	}
	return Human
}
