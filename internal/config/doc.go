// Package config handles configuration loading for docs-copilot.
//
// # Configuration File
//
// The path comes from the DOCS_COPILOT_CONFIG environment variable, falling
// back to $XDG_CONFIG_HOME/docs-copilot/config.yaml. Files ending in .toml are
// parsed as TOML; everything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	agent:
//	  api_key: "${DOCS_COPILOT_AGENT_KEY}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//
//	agent:
//	  endpoint: "https://agent.example.com/v1/chat"   # required
//	  api_key: "${DOCS_COPILOT_AGENT_KEY}"            # required
//	  timeout: "60s"
//
//	reset:
//	  url: "https://agent.example.com/v1/reset"       # optional
//	  timeout: "5s"
//
//	widget:
//	  default_open: false
//	  labels:
//	    title: "Ask the docs"
//	    placeholder: "Type a question"
//	    initial: "Answers are generated and may be wrong."
//
//	database:
//	  path: "/var/lib/docs-copilot/transcripts.db"   # optional
//
//	tailscale:
//	  enabled: false
//	  hostname: "docs-copilot"
//	  funnel: false
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() checks only presence: an HTTP address unless tailscale is enabled,
// and a non-empty agent endpoint and api key. Values are otherwise passed
// through unchanged.
package config
