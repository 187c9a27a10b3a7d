package config

// Config is the daemon's whole configuration surface.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Sweeper SweeperConfig `json:"sweeper"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./schedules.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SweeperConfig controls the due-schedule sweep loop.
//
// Defaults (when fields are omitted/zero):
//   - interval: "1m"
//   - rate_per_sec: 10
type SweeperConfig struct {
	Enabled bool `json:"enabled"`
	// Interval is a Go duration string between sweep passes.
	Interval string `json:"interval,omitempty"`
	// Orgs lists the organization scopes to sweep.
	Orgs       []string `json:"orgs,omitempty"`
	RatePerSec int      `json:"rate_per_sec,omitempty"`
}
