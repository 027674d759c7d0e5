// Package defaults provides embedded default assets (prompt templates and config).
package defaults

import _ "embed"

//go:embed default_prompt.md
var DefaultPrompt string

//go:embed chat_system_prompt.md
var ChatSystemPrompt string

//go:embed default_config.json
var DefaultConfigJSON []byte
