package lark

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

const maxWebhookBody = 1 << 20

// webhookHandler serves the event-subscription endpoint for one account.
// url_verification is answered inline; message events are acked first and
// processed in the background.
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
		// Without a verification token every event would be accepted blind,
		// so refuse to operate instead.
		if acct.verificationToken == "" {
			slog.Error("lark webhook rejected, verification_token not configured", "account", acct.id)
			http.Error(w, "verification token not configured", http.StatusInternalServerError)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		// A body that fails to parse carries no token, so it falls into
		// the 401 below instead of a parse error.
		var env eventEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			slog.Warn("lark webhook bad payload", "account", acct.id, "error", err)
			env = eventEnvelope{}
		}

		if env.verifyToken() != acct.verificationToken {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"Invalid token"}`)
			return
		}

		if env.Type == "url_verification" && env.Challenge != "" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"challenge": env.Challenge})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true}`)

		if env.Header.EventType != "im.message.receive_v1" {
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), ac.processTimeout)
			defer cancel()
			processEvent(ctx, ac.deps, ac.client, &env)
		}()
	}
}
