package dingtalk

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const maxWebhookBody = 1 << 20

// webhookHandler serves the outgoing-webhook endpoint for one account.
// The exchange is ack-then-process: DingTalk gets its 200 immediately and
// the admission pipeline runs in the background.
func webhookHandler(deps func() accountContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac := deps()

		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			io.WriteString(w, "ok")
			return
		case http.MethodPost:
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		acct := ac.acct
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		// A body that fails to parse is still acked; only a configured
		// token turns it into a rejection.
		var msg inboundMessage
		parsed := true
		if err := json.Unmarshal(body, &msg); err != nil {
			slog.Warn("dingtalk webhook bad payload", "account", acct.id, "error", err)
			msg = inboundMessage{}
			parsed = false
		}

		if acct.verificationToken != "" {
			token := strings.TrimSpace(msg.Token)
			if token == "" || token != acct.verificationToken {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"error":"Invalid token"}`)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true}`)

		if !parsed {
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), ac.processTimeout)
			defer cancel()
			processInbound(ctx, ac.deps, ac.sender, &msg)
		}()
	}
}
