package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const robotSendURL = "https://oapi.dingtalk.com/robot/send"

// robotMessage is the custom-robot webhook payload.
type robotMessage struct {
	MsgType  string         `json:"msgtype"`
	Text     *robotText     `json:"text,omitempty"`
	Markdown *robotMarkdown `json:"markdown,omitempty"`
}

type robotText struct {
	Content string `json:"content"`
}

type robotMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type robotResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// apiError is a non-zero errcode from the robot webhook endpoint.
type apiError struct {
	Code int
	Msg  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("dingtalk api error %d: %s", e.Code, e.Msg)
}

// postRobotMessage delivers one message to a robot webhook URL.
func postRobotMessage(ctx context.Context, client *http.Client, webhookURL string, msg robotMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode robot message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build robot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post robot message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read robot response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("robot webhook status %d: %s", resp.StatusCode, raw)
	}

	var parsed robotResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decode robot response: %w", err)
	}
	if parsed.ErrCode != 0 {
		return &apiError{Code: parsed.ErrCode, Msg: parsed.ErrMsg}
	}
	return nil
}
