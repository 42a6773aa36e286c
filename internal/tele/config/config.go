// Separate package is workaround to import cycles.
package tele_config

type Config struct { //nolint:maligned
	URL                  string `hcl:"dronex_url" yaml:"dronex_url"`
	DroneID              string `hcl:"drone_id" yaml:"drone_id"`
	DroneToken           string `hcl:"drone_token" yaml:"drone_token"` // secret
	Mode                 string `hcl:"mode" yaml:"mode"`
	TelemetryIntervalSec int    `hcl:"telemetry_interval_sec" yaml:"telemetry_interval_sec"`
	NetworkTimeoutSec    int    `hcl:"network_timeout_sec" yaml:"network_timeout_sec"`
	LogDebug             bool   `hcl:"log_debug" yaml:"log_debug"`
	SimSeed              int64  `hcl:"sim_seed" yaml:"sim_seed"`

	Backoff struct {
		BaseMs int     `hcl:"base_ms" yaml:"base_ms"`
		MaxMs  int     `hcl:"max_ms" yaml:"max_ms"`
		K      float32 `hcl:"k" yaml:"k"`
	} `hcl:"backoff" yaml:"backoff"`

	BuildVersion string `hcl:"-" yaml:"-"`
}
