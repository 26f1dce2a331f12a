package config

import (
	"fmt"

	"github.com/titanous/json5"
	"github.com/xeipuuv/gojsonschema"
)

// channelAccountProps is the shared property set for a channel account block.
// Credentials differ per vendor and are appended below.
const channelAccountProps = `
	"enabled": { "type": "boolean" },
	"name": { "type": "string" },
	"verification_token": { "type": "string" },
	"webhook_path": { "type": "string" },
	"dm_policy": { "enum": ["disabled", "open", "allowlist", "pairing"] },
	"allow_from": { "type": "array", "items": { "type": "string" } },
	"group_policy": { "enum": ["disabled", "open", "allowlist"] },
	"group_allow_from": { "type": "array", "items": { "type": "string" } },
	"tools": {},
	"markdown": {},
	"block_streaming_coalesce": {},
	"history_limit": { "type": "integer", "minimum": 0 },
	"dm_history_limit": { "type": "integer", "minimum": 0 },
	"text_chunk_limit": { "type": "integer", "minimum": 1 },
	"chunk_mode": { "enum": ["length", "newline"] },
	"block_streaming": { "type": "boolean" }
`

var dingtalkSchema = fmt.Sprintf(`{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		%s,
		"access_token": { "type": "string" },
		"accounts": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"additionalProperties": false,
				"properties": {
					%s,
					"access_token": { "type": "string" }
				}
			}
		}
	}
}`, channelAccountProps, channelAccountProps)

var larkSchema = fmt.Sprintf(`{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		%s,
		"app_id": { "type": "string" },
		"app_secret": { "type": "string" },
		"accounts": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"additionalProperties": false,
				"properties": {
					%s,
					"app_id": { "type": "string" },
					"app_secret": { "type": "string" }
				}
			}
		}
	}
}`, channelAccountProps, channelAccountProps)

// Validate checks the raw config document against the per-channel schemas
// and the cross-field policy rules. The document is JSON5.
func Validate(raw []byte) error {
	var doc map[string]any
	if err := json5.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	channels, _ := doc["channels"].(map[string]any)
	if channels == nil {
		return nil
	}

	if section, ok := channels["dingtalk"]; ok && section != nil {
		if err := validateSection("channels.dingtalk", dingtalkSchema, section); err != nil {
			return err
		}
	}
	if section, ok := channels["lark"]; ok && section != nil {
		if err := validateSection("channels.lark", larkSchema, section); err != nil {
			return err
		}
	}
	return nil
}

func validateSection(path, schema string, section any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(section),
	)
	if err != nil {
		return fmt.Errorf("%s: schema validation: %w", path, err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("%s: invalid config: %s: %s", path, first.Field(), first.Description())
	}

	// dmPolicy="open" requires allowFrom to contain "*", at the base level
	// and inside every account block.
	m, _ := section.(map[string]any)
	if err := checkOpenAllowFrom(path, m); err != nil {
		return err
	}
	if accounts, ok := m["accounts"].(map[string]any); ok {
		for id, acct := range accounts {
			if am, ok := acct.(map[string]any); ok {
				if err := checkOpenAllowFrom(fmt.Sprintf("%s.accounts.%s", path, id), am); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkOpenAllowFrom(path string, section map[string]any) error {
	if section == nil {
		return nil
	}
	if policy, _ := section["dm_policy"].(string); policy != "open" {
		return nil
	}
	if entries, ok := section["allow_from"].([]any); ok {
		for _, e := range entries {
			if s, ok := e.(string); ok && s == "*" {
				return nil
			}
		}
	}
	return fmt.Errorf(`%s: dm_policy="open" requires allow_from to include "*"`, path)
}
