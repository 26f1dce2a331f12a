package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const defaultBaseURL = "https://open.feishu.cn"

// tokenExpiryMargin is subtracted from the platform TTL so a token is
// refreshed before it can expire mid-request.
const tokenExpiryMargin = 30 * time.Second

// apiError is a non-zero code from the Open API.
type apiError struct {
	Code int
	Msg  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("lark api error %d: %s", e.Code, e.Msg)
}

// client talks to the Lark Open API. Tenant access tokens are cached per
// account+app pair until shortly before expiry.
type client struct {
	http    *http.Client
	baseURL string
	now     func() time.Time

	mu     sync.Mutex
	tokens map[string]tokenEntry
}

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

func newClient() *client {
	return &client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
		now:     time.Now,
		tokens:  make(map[string]tokenEntry),
	}
}

// tenantToken returns a valid tenant access token for the account,
// fetching a fresh one when the cached token is missing or near expiry.
func (c *client) tenantToken(ctx context.Context, acct account) (string, error) {
	key := acct.id + ":" + acct.appID

	c.mu.Lock()
	entry, ok := c.tokens[key]
	if ok && c.now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.token, nil
	}
	c.mu.Unlock()

	var resp struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"` // seconds
	}
	err := c.post(ctx, "/open-apis/auth/v3/tenant_access_token/internal", "", map[string]string{
		"app_id":     acct.appID,
		"app_secret": acct.appSecret,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("tenant token: %w", err)
	}
	if resp.Code != 0 {
		return "", &apiError{Code: resp.Code, Msg: resp.Msg}
	}

	ttl := time.Duration(resp.Expire)*time.Second - tokenExpiryMargin
	if ttl < 0 {
		ttl = 0
	}
	c.mu.Lock()
	c.tokens[key] = tokenEntry{token: resp.TenantAccessToken, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	return resp.TenantAccessToken, nil
}

// sendMessage delivers one text message and returns the platform message id.
// receiveIDType is "open_id" or "chat_id".
func (c *client) sendMessage(ctx context.Context, acct account, receiveIDType, receiveID, text string) (string, error) {
	token, err := c.tenantToken(ctx, acct)
	if err != nil {
		return "", err
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("encode message content: %w", err)
	}

	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			MessageID string `json:"message_id"`
		} `json:"data"`
	}
	path := "/open-apis/im/v1/messages?receive_id_type=" + url.QueryEscape(receiveIDType)
	err = c.post(ctx, path, token, map[string]string{
		"receive_id": receiveID,
		"msg_type":   "text",
		"content":    string(content),
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if resp.Code != 0 {
		return "", &apiError{Code: resp.Code, Msg: resp.Msg}
	}
	return resp.Data.MessageID, nil
}

func (c *client) post(ctx context.Context, path, token string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
