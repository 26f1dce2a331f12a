package routing

import (
	"testing"

	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

func TestBuildSessionKey(t *testing.T) {
	tests := []struct {
		name    string
		agentID string
		channel string
		kind    PeerKind
		peerID  string
		want    string
	}{
		{"lark dm", "default", "lark", PeerDM, "ou_abc", "agent:default:lark:dm:ou_abc"},
		{"dingtalk group", "default", "dingtalk", PeerGroup, "cid123", "agent:default:dingtalk:group:cid123"},
		{"custom agent", "ops", "lark", PeerGroup, "oc_x", "agent:ops:lark:group:oc_x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSessionKey(tt.agentID, tt.channel, tt.kind, tt.peerID)
			if got != tt.want {
				t.Errorf("BuildSessionKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSessionKey(t *testing.T) {
	agentID, rest := ParseSessionKey("agent:default:lark:dm:ou_abc")
	if agentID != "default" || rest != "lark:dm:ou_abc" {
		t.Errorf("ParseSessionKey() = %q, %q", agentID, rest)
	}

	agentID, rest = ParseSessionKey("not-a-key")
	if agentID != "" || rest != "" {
		t.Errorf("expected empty parse, got %q, %q", agentID, rest)
	}
}

func TestResolveAgentRouteDefaults(t *testing.T) {
	cfg := config.Default()
	route := ResolveAgentRoute(cfg, "dingtalk", "default", Peer{Kind: PeerGroup, ID: "c1"})
	if route.AgentID != "default" {
		t.Errorf("AgentID = %q", route.AgentID)
	}
	if route.SessionKey != "agent:default:dingtalk:group:c1" {
		t.Errorf("SessionKey = %q", route.SessionKey)
	}

	cfg.Routing.DefaultAgentID = ""
	route = ResolveAgentRoute(cfg, "lark", "work", Peer{Kind: PeerDM, ID: "ou_1"})
	if route.AgentID != "default" {
		t.Errorf("empty config should fall back to default agent, got %q", route.AgentID)
	}
}
