// Package config loads the statewire TOML configuration.
//
// Load reads ~/.config/statewire/config.toml unless a path is given. A
// missing file is not an error; defaults are used instead. Fields left empty
// keep their defaults.
//
// Example config.toml:
//
//	log_level = "debug"
//
//	[resource]
//	debounce = "50ms"
//	timeout = "30s"
//	retention = "2s"
//	writebounce = "100ms"
//	poll_interval = "1s"
//	max_requests_per_second = 10
//	burst = 5
//
//	[store]
//	sqlite = "~/.local/share/statewire/cells.db"
//	bolt = "~/.local/share/statewire/vars.bolt"
//
//	[metrics]
//	listen = "127.0.0.1:9464"
//
// Durations use time.ParseDuration syntax. Unknown keys are rejected.
package config
