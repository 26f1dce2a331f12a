package reply

import "strings"

// controlCommands are the host control tokens recognized on chat surfaces.
var controlCommands = map[string]bool{
	"/status":    true,
	"/help":      true,
	"/reset":     true,
	"/stop":      true,
	"/restart":   true,
	"/allowlist": true,
	"/pair":      true,
}

// HasControlCommand reports whether the message text begins with a
// recognized control command.
func HasControlCommand(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return false
	}
	word := trimmed
	if idx := strings.IndexAny(trimmed, " \t\n"); idx > 0 {
		word = trimmed[:idx]
	}
	// Strip a @bot suffix ("/status@mybot").
	if idx := strings.IndexByte(word, '@'); idx > 0 {
		word = word[:idx]
	}
	return controlCommands[strings.ToLower(word)]
}

// Authorizer is one allowlist consulted by the command gate.
type Authorizer struct {
	Configured bool // an allowlist exists for this scope
	Allowed    bool // the sender matched it
}

// GateParams feed ResolveControlCommandGate.
type GateParams struct {
	UseAccessGroups   bool
	Authorizers       []Authorizer
	AllowTextCommands bool
	HasControlCommand bool
}

// Gate is the command-authorization decision for one message.
type Gate struct {
	// CommandAuthorized is attached to the outgoing context so downstream
	// command execution can honor it.
	CommandAuthorized bool
	// ShouldBlock means the whole message must be dropped: an unauthorized
	// sender issued a control command. Callers apply this in group scope.
	ShouldBlock bool
}

// ResolveControlCommandGate computes command authorization for a sender.
// With access groups disabled every sender is command-authorized; otherwise
// the sender must match a configured allowlist.
func ResolveControlCommandGate(p GateParams) Gate {
	authorized := !p.UseAccessGroups
	if !authorized {
		for _, a := range p.Authorizers {
			if a.Configured && a.Allowed {
				authorized = true
				break
			}
		}
	}
	attempted := p.AllowTextCommands && p.HasControlCommand
	return Gate{
		CommandAuthorized: authorized,
		ShouldBlock:       attempted && !authorized,
	}
}
