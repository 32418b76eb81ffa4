package model

import "time"

// Shared defaults used by the CLI and the server.
const (
	DefaultAPIPort        = 3000
	DefaultQueryTimeout   = 30 * time.Second
	DefaultReloadDebounce = 250 * time.Millisecond
	DefaultLogLevel       = "info"
)
