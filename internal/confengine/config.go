/*
Package confengine loads an optional YAML configuration file on top of
which command-line flags take precedence. It is a thin wrapper around
go-ucfg, following the same Config/Unpack shape used elsewhere in the
wider Go ecosystem for layered configuration.
*/
package confengine

import (
	"github.com/elastic/go-ucfg"
	"github.com/elastic/go-ucfg/yaml"
)

// Config wraps a parsed configuration tree.
type Config struct {
	conf *ucfg.Config
}

// New wraps an already-parsed ucfg.Config.
func New(conf *ucfg.Config) *Config {
	return &Config{conf: conf}
}

// LoadConfigPath reads and parses a YAML file at path.
func LoadConfigPath(path string) (*Config, error) {
	conf, err := yaml.NewConfigWithFile(path, ucfg.PathSep("."))
	if err != nil {
		return nil, err
	}
	return New(conf), nil
}

// LoadContent parses in-memory YAML content, e.g. for tests.
func LoadContent(b []byte) (*Config, error) {
	conf, err := yaml.NewConfig(b, ucfg.PathSep("."))
	if err != nil {
		return nil, err
	}
	return New(conf), nil
}

// Has reports whether the dotted path s is present.
func (c *Config) Has(s string) bool {
	if c == nil || c.conf == nil {
		return false
	}
	has, err := c.conf.Has(s, -1, ucfg.PathSep("."))
	return err == nil && has
}

// Unpack decodes the whole tree into to, which must be a pointer.
func (c *Config) Unpack(to any) error {
	if c == nil || c.conf == nil {
		return nil
	}
	return c.conf.Unpack(to, ucfg.PathSep("."))
}

// ServerSettings is the shape of the YAML file's top-level fields: one
// field for each flag cmd/redkv-server defines (other than --config), so
// a flag not passed on the command line can be filled in from the file
// without clobbering a flag the user actually passed.
type ServerSettings struct {
	Address        string `config:"address"`
	Dir            string `config:"dir"`
	DBFilename     string `config:"dbfilename"`
	Shards         int    `config:"shards"`
	MetricsAddress string `config:"metrics_address"`
	LogLevel       string `config:"log_level"`
	LogFile        string `config:"log_file"`
}
