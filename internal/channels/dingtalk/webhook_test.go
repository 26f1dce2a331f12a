package dingtalk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nextlevelbuilder/clawbridge/internal/activity"
	"github.com/nextlevelbuilder/clawbridge/internal/channels"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
	"github.com/nextlevelbuilder/clawbridge/internal/reply"
	"github.com/nextlevelbuilder/clawbridge/internal/store"
	"github.com/nextlevelbuilder/clawbridge/internal/store/file"
)

type fakePairing struct {
	allow []string
}

func (f *fakePairing) ReadAllowFrom(_ context.Context, channel string) ([]string, error) {
	return f.allow, nil
}

func (f *fakePairing) UpsertRequest(_ context.Context, channel, senderID, senderName string) (string, bool, error) {
	return "", false, nil
}

func (f *fakePairing) ListRequests(_ context.Context, channel string) ([]store.PairingRequest, error) {
	return nil, nil
}

func (f *fakePairing) Approve(_ context.Context, code string) (store.PairingRequest, error) {
	return store.PairingRequest{}, nil
}

func (f *fakePairing) Close() error { return nil }

func testHandler(cfg *config.Config) http.HandlerFunc {
	return webhookHandler(func() accountContext {
		return accountContext{
			acct:           resolveAccount(cfg, "default"),
			deps:           channels.AccountDeps{AccountID: "default", Cfg: cfg},
			sender:         newSender(),
			processTimeout: time.Second,
		}
	})
}

func TestWebhookGet(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.DingTalk = &config.DingTalkConfig{AccessToken: "tok"}

	rec := httptest.NewRecorder()
	testHandler(cfg)(rec, httptest.NewRequest(http.MethodGet, "/webhooks/dingtalk", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("GET = %d %q", rec.Code, rec.Body.String())
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.DingTalk = &config.DingTalkConfig{AccessToken: "tok"}

	rec := httptest.NewRecorder()
	testHandler(cfg)(rec, httptest.NewRequest(http.MethodPut, "/webhooks/dingtalk", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, "POST") {
		t.Errorf("Allow = %q", allow)
	}
}

func TestWebhookTokenCheck(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.DingTalk = &config.DingTalkConfig{
		AccessToken:       "tok",
		VerificationToken: "secret",
	}
	handler := testHandler(cfg)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/dingtalk", strings.NewReader(`{"token":"wrong"}`))
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}
	if rec.Body.String() != `{"error":"Invalid token"}` {
		t.Errorf("body = %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/dingtalk", strings.NewReader(`{"token":"secret"}`))
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("good token status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Errorf("ack body = %q", rec.Body.String())
	}
}

func TestWebhookBadPayload(t *testing.T) {
	// Without a verification token an unparseable body is still acked.
	cfg := config.Default()
	cfg.Channels.DingTalk = &config.DingTalkConfig{AccessToken: "tok"}

	rec := httptest.NewRecorder()
	testHandler(cfg)(rec, httptest.NewRequest(http.MethodPost, "/webhooks/dingtalk", strings.NewReader("not json")))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 ack", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Errorf("body = %q", rec.Body.String())
	}

	// With a token configured, an unparseable body cannot carry it.
	cfg.Channels.DingTalk.VerificationToken = "secret"
	rec = httptest.NewRecorder()
	testHandler(cfg)(rec, httptest.NewRequest(http.MethodPost, "/webhooks/dingtalk", strings.NewReader("not json")))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestProcessInboundGroupMessage(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Store = t.TempDir()
	cfg.Channels.DingTalk = &config.DingTalkConfig{
		AccessToken:    "tok",
		GroupAllowFrom: []string{"staff001"},
	}

	var got *reply.InboundContext
	host := &channels.Host{
		Sessions: file.NewSessionStore(),
		Inbound: func(_ context.Context, msg *reply.InboundContext, _ *reply.Dispatcher) {
			got = msg
		},
	}
	deps := channels.AccountDeps{AccountID: "default", Cfg: cfg, Host: host}

	msg := &inboundMessage{
		MsgID:             "m1",
		MsgType:           "text",
		CreateAt:          1700000000000,
		ConversationID:    "cidXYZ123",
		ConversationType:  "2",
		ConversationTitle: "Ops Room",
		SenderStaffID:     "staff001",
		SenderNick:        "Alice",
	}
	msg.Text.Content = "  hello agent  "

	processInbound(context.Background(), deps, newSender(), msg)
	if got == nil {
		t.Fatal("message was not delivered to the inbound sink")
	}
	if got.RawBody != "hello agent" {
		t.Errorf("RawBody = %q", got.RawBody)
	}
	if got.SessionKey != "agent:default:dingtalk:group:cidXYZ123" {
		t.Errorf("SessionKey = %q", got.SessionKey)
	}
	if got.From != "dingtalk:staff001" || got.To != "dingtalk:conversation:cidXYZ123" {
		t.Errorf("From=%q To=%q", got.From, got.To)
	}
	if got.ChatType != "group" || got.GroupSubject != "Ops Room" {
		t.Errorf("ChatType=%q GroupSubject=%q", got.ChatType, got.GroupSubject)
	}
	if !strings.HasPrefix(got.Body, "[DingTalk] Alice at ") {
		t.Errorf("Body = %q", got.Body)
	}
	if !got.CommandAuthorized {
		t.Error("allowlisted sender should be command-authorized")
	}
}

func TestProcessInboundDrops(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Store = t.TempDir()
	cfg.Channels.DingTalk = &config.DingTalkConfig{
		AccessToken:    "tok",
		GroupAllowFrom: []string{"staff001"},
	}

	delivered := 0
	host := &channels.Host{
		Sessions: file.NewSessionStore(),
		Inbound: func(_ context.Context, _ *reply.InboundContext, _ *reply.Dispatcher) {
			delivered++
		},
	}
	deps := channels.AccountDeps{AccountID: "default", Cfg: cfg, Host: host}

	base := inboundMessage{
		MsgType:          "text",
		ConversationID:   "cidXYZ123",
		ConversationType: "2",
		SenderStaffID:    "staff001",
	}

	dm := base
	dm.ConversationType = "1"
	dm.Text.Content = "hi"
	processInbound(context.Background(), deps, newSender(), &dm)

	stranger := base
	stranger.SenderStaffID = "staff999"
	stranger.Text.Content = "hi"
	processInbound(context.Background(), deps, newSender(), &stranger)

	empty := base
	empty.Text.Content = "   "
	processInbound(context.Background(), deps, newSender(), &empty)

	markdown := base
	markdown.MsgType = "markdown"
	markdown.Text.Content = "**hi**"
	processInbound(context.Background(), deps, newSender(), &markdown)

	anonymous := base
	anonymous.SenderStaffID = ""
	anonymous.Text.Content = "hi"
	processInbound(context.Background(), deps, newSender(), &anonymous)

	if delivered != 0 {
		t.Errorf("delivered = %d, want all dropped", delivered)
	}
}

func TestProcessInboundAllowFromFallback(t *testing.T) {
	// With no group allowlist configured, allow_from doubles as the
	// group list.
	cfg := config.Default()
	cfg.Session.Store = t.TempDir()
	cfg.Channels.DingTalk = &config.DingTalkConfig{
		AccessToken: "tok",
		AllowFrom:   []string{"staff001"},
	}

	var got *reply.InboundContext
	host := &channels.Host{
		Sessions: file.NewSessionStore(),
		Inbound: func(_ context.Context, msg *reply.InboundContext, _ *reply.Dispatcher) {
			got = msg
		},
	}
	deps := channels.AccountDeps{AccountID: "default", Cfg: cfg, Host: host}

	msg := &inboundMessage{
		MsgType:          "text",
		ConversationID:   "cidXYZ123",
		ConversationType: "2",
		SenderStaffID:    "staff001",
	}
	msg.Text.Content = "hi"
	processInbound(context.Background(), deps, newSender(), msg)
	if got == nil {
		t.Fatal("allow_from sender should pass when group_allow_from is unset")
	}
	if !got.CommandAuthorized {
		t.Error("fallback allowlist sender should be command-authorized")
	}
}

func TestProcessInboundPairingApprovedSender(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Store = t.TempDir()
	cfg.Channels.DingTalk = &config.DingTalkConfig{
		AccessToken:    "tok",
		GroupAllowFrom: []string{"staff001"},
	}

	delivered := 0
	host := &channels.Host{
		Pairing:  &fakePairing{allow: []string{"staff777"}},
		Sessions: file.NewSessionStore(),
		Inbound: func(_ context.Context, _ *reply.InboundContext, _ *reply.Dispatcher) {
			delivered++
		},
	}
	deps := channels.AccountDeps{AccountID: "default", Cfg: cfg, Host: host}

	msg := &inboundMessage{
		MsgType:          "text",
		ConversationID:   "cidXYZ123",
		ConversationType: "2",
		SenderStaffID:    "staff777",
	}
	msg.Text.Content = "hi"
	processInbound(context.Background(), deps, newSender(), msg)
	if delivered != 1 {
		t.Errorf("delivered = %d, want pairing-approved sender admitted", delivered)
	}
}

func TestProcessInboundRecordsActivityBeforePolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Store = t.TempDir()
	cfg.Channels.DingTalk = &config.DingTalkConfig{
		AccessToken:    "tok",
		GroupAllowFrom: []string{"staff001"},
	}

	rec := activity.NewRecorder(prometheus.NewRegistry())
	host := &channels.Host{
		Sessions: file.NewSessionStore(),
		Activity: rec,
	}
	deps := channels.AccountDeps{AccountID: "default", Cfg: cfg, Host: host}

	msg := &inboundMessage{
		MsgType:          "text",
		ConversationID:   "cidXYZ123",
		ConversationType: "2",
		SenderStaffID:    "staff999",
	}
	msg.Text.Content = "hi"
	processInbound(context.Background(), deps, newSender(), msg)

	// The message is dropped by the allowlist but still counts as seen.
	if in, _ := rec.LastSeen("dingtalk", "default"); in == 0 {
		t.Error("inbound activity should be recorded before admission")
	}
}

func TestProcessInboundCommandGate(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Store = t.TempDir()
	cfg.Channels.DingTalk = &config.DingTalkConfig{
		AccessToken: "tok",
		GroupPolicy: "open",
		GroupAllowFrom: []string{
			"staff001",
		},
	}

	var got *reply.InboundContext
	host := &channels.Host{
		Sessions: file.NewSessionStore(),
		Inbound: func(_ context.Context, msg *reply.InboundContext, _ *reply.Dispatcher) {
			got = msg
		},
	}
	deps := channels.AccountDeps{AccountID: "default", Cfg: cfg, Host: host}

	// Unauthorized sender issuing a control command is blocked even with
	// an open group policy.
	msg := &inboundMessage{
		MsgType:          "text",
		ConversationID:   "cidXYZ123",
		ConversationType: "2",
		SenderStaffID:    "staff999",
	}
	msg.Text.Content = "/status"
	processInbound(context.Background(), deps, newSender(), msg)
	if got != nil {
		t.Fatal("unauthorized control command should be dropped")
	}

	// Plain text from the same sender passes, unauthorized.
	msg.Text.Content = "just chatting"
	processInbound(context.Background(), deps, newSender(), msg)
	if got == nil {
		t.Fatal("plain text should pass")
	}
	if got.CommandAuthorized {
		t.Error("sender off the allowlist must not be command-authorized")
	}
}
