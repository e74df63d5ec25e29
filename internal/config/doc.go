// Package config handles configuration loading for rocketlauncher.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from ROCKETLAUNCHER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/rocketlauncher/config.yaml
//  3. ~/.config/rocketlauncher/config.yaml
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
// A .env file next to the config file (or in the working directory) is loaded
// before expansion, so secrets can stay out of the config:
//
//	assistants:
//	  api_key: "${OPENAI_API_KEY}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//
//	database:
//	  path: "~/.local/share/rocketlauncher/documents.db"
//	  driver: "sqlite"             # sqlite (pure Go) or sqlite3 (cgo)
//
//	session:
//	  secret: "${ROCKETLAUNCHER_SESSION_SECRET}"   # >= 32 bytes
//
//	workflows:
//	  base_url: "https://flowise.example.com"
//	  send_history: false
//	  timeout: "2m"
//
//	assistants:
//	  api_key: "${OPENAI_API_KEY}"
//	  poll_interval: "1s"
//	  run_timeout: "60s"
//
//	chat:
//	  persist_transcripts: false
//	  session_ttl: "30m"
//	  send_rate: 1
//	  send_burst: 3
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
