// Package routing resolves agent routes and canonical session keys.
//
// Session keys follow the canonical format:
//
//	agent:{agentId}:{channel}:{kind}:{peerId}
//
// Where {kind} is "dm" or "group". Examples:
//
//	agent:default:lark:dm:ou_abc123
//	agent:default:dingtalk:group:cidXXXX
package routing

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

// PeerKind distinguishes DM from group conversations.
type PeerKind string

const (
	PeerDM    PeerKind = "dm"
	PeerGroup PeerKind = "group"
)

// Peer identifies the remote side of a conversation.
type Peer struct {
	Kind PeerKind
	ID   string
}

// Route is the resolved destination for an inbound message.
type Route struct {
	AgentID    string
	AccountID  string
	SessionKey string
}

// ResolveAgentRoute maps a channel conversation to an agent and session key.
func ResolveAgentRoute(cfg *config.Config, channel, accountID string, peer Peer) Route {
	agentID := cfg.Routing.DefaultAgentID
	if agentID == "" {
		agentID = "default"
	}
	return Route{
		AgentID:    agentID,
		AccountID:  accountID,
		SessionKey: BuildSessionKey(agentID, channel, peer.Kind, peer.ID),
	}
}

// BuildSessionKey builds the canonical session key for a channel conversation.
func BuildSessionKey(agentID, channel string, kind PeerKind, peerID string) string {
	return fmt.Sprintf("agent:%s:%s:%s:%s", agentID, channel, kind, peerID)
}

// ParseSessionKey extracts the agentID and rest from a canonical session key.
// Returns ("", "") if the key is not in the expected format.
func ParseSessionKey(key string) (agentID, rest string) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || parts[0] != "agent" {
		return "", ""
	}
	return parts[1], parts[2]
}

// PeerKindFromGroup returns PeerGroup if isGroup is true, PeerDM otherwise.
func PeerKindFromGroup(isGroup bool) PeerKind {
	if isGroup {
		return PeerGroup
	}
	return PeerDM
}
