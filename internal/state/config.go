package state

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/Neon18H/DRONEX-AGENT/helpers"
	"github.com/Neon18H/DRONEX-AGENT/internal/tele"
	tele_config "github.com/Neon18H/DRONEX-AGENT/internal/tele/config"
	"github.com/Neon18H/DRONEX-AGENT/log2"
)

// Config is the whole agent configuration file. HCL is the native format;
// .yaml/.yml files are accepted too, the extension selects the decoder.
type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include" yaml:"include"`

	Agent tele_config.Config `hcl:"agent" yaml:"agent"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key" yaml:"name"`
	Optional bool   `hcl:"optional" yaml:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		log.Fatalf("config duplicate source=%s", source.Name)
	} else {
		log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	}
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
			return
		}
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = unmarshalByExt(norm, bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func unmarshalByExt(path string, bs []byte, c *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(bs, c)
	default:
		return hcl.Unmarshal(bs, c)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Validate enforces the startup invariants that must fail before any
// network attempt is made.
func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	a := &c.Agent
	if a.URL == "" {
		errs = append(errs, errors.NotValidf("config agent.dronex_url is required"))
	} else if !strings.HasPrefix(a.URL, "https://") {
		errs = append(errs, errors.NotValidf("config agent.dronex_url=%s must be https", a.URL))
	}
	if a.DroneID == "" {
		errs = append(errs, errors.NotValidf("config agent.drone_id is required"))
	}
	if a.DroneToken == "" {
		errs = append(errs, errors.NotValidf("config agent.drone_token is required"))
	}
	if a.TelemetryIntervalSec < 0 {
		errs = append(errs, errors.NotValidf("config agent.telemetry_interval_sec=%d must be positive", a.TelemetryIntervalSec))
	}
	if a.NetworkTimeoutSec < 0 {
		errs = append(errs, errors.NotValidf("config agent.network_timeout_sec=%d must be positive", a.NetworkTimeoutSec))
	}
	if _, err := tele.ParseMode(a.Mode); err != nil {
		errs = append(errs, errors.Annotate(err, "config agent.mode"))
	}
	return helpers.FoldErrors(errs)
}
