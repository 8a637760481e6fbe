// Package config holds the server configuration. A Config is built once at
// start-up and handed to the listener and every session.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort        = 8080
	DefaultInterpreter = "/usr/bin/python"
	DefaultEntryPoint  = "invoke.py"
	DefaultTermName    = "xterm-256color"
	DefaultRows        = 30
	DefaultCols        = 80
	DefaultSocketPath  = "/wetty/socket"
	DefaultStaticDir   = "public"

	// DefaultOutputTail is how much trailing process output is kept for exit logs.
	DefaultOutputTail = 4 * 1024
)

// Config is the complete server configuration.
type Config struct {
	Server   Server   `json:"server" yaml:"server"`
	Terminal Terminal `json:"terminal" yaml:"terminal"`
}

// Server configures the HTTP listener.
type Server struct {
	Port       int    `json:"wetty_port" yaml:"wetty_port"`
	Certs      *Certs `json:"certs,omitempty" yaml:"certs,omitempty"`
	StaticDir  string `json:"static_dir,omitempty" yaml:"static_dir,omitempty"`
	SocketPath string `json:"socket_path,omitempty" yaml:"socket_path,omitempty"`
}

// Certs locates the TLS certificate and key. When set the server speaks HTTPS.
type Certs struct {
	Cert       string `json:"cert" yaml:"cert"`
	PrivateKey string `json:"private_key" yaml:"private_key"`
}

// Terminal configures how backing processes are invoked. Zero fields take
// the value of their default tag, which must match the Default* constants.
type Terminal struct {
	Interpreter string `json:"interpreter,omitempty" yaml:"interpreter,omitempty" default:"/usr/bin/python"`
	EntryPoint  string `json:"entry_point,omitempty" yaml:"entry_point,omitempty" default:"invoke.py"`

	// ConfigPath is passed to the entry point. Load sets it to the loaded file.
	ConfigPath string `json:"config_path,omitempty" yaml:"config_path,omitempty"`

	// RequireRepoName makes repoName a required parameter and inserts it into
	// the invocation before the commit.
	RequireRepoName bool `json:"require_repo_name,omitempty" yaml:"require_repo_name,omitempty"`

	TermName   string `json:"term_name,omitempty" yaml:"term_name,omitempty" default:"xterm-256color"`
	Rows       uint16 `json:"rows,omitempty" yaml:"rows,omitempty" default:"30"`
	Cols       uint16 `json:"cols,omitempty" yaml:"cols,omitempty" default:"80"`
	OutputTail int    `json:"output_tail,omitempty" yaml:"output_tail,omitempty" default:"4096"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads a configuration file. Files ending in .yaml or .yml are decoded
// as YAML, everything else as JSON. Keys this server does not know about are
// ignored since the file is usually the full test-looper server config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	c := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if c.Terminal.ConfigPath == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		c.Terminal.ConfigPath = abs
	}

	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	// Server is filled by hand since Certs has to stay nil unless configured.
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = DefaultStaticDir
	}
	if c.Server.SocketPath == "" {
		c.Server.SocketPath = DefaultSocketPath
	}
	defaults.SetDefaults(&c.Terminal)
}

// TLSEnabled reports whether the server should listen with TLS.
func (c *Config) TLSEnabled() bool {
	return c.Server.Certs != nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if !strings.HasPrefix(c.Server.SocketPath, "/") {
		errs = append(errs, fmt.Errorf("socket path %q must be absolute", c.Server.SocketPath))
	}
	if certs := c.Server.Certs; certs != nil && (certs.Cert == "" || certs.PrivateKey == "") {
		errs = append(errs, errors.New("certs requires both cert and private_key"))
	}
	if c.Terminal.Interpreter == "" {
		errs = append(errs, errors.New("terminal interpreter is required"))
	}
	if c.Terminal.EntryPoint == "" {
		errs = append(errs, errors.New("terminal entry point is required"))
	}
	if c.Terminal.ConfigPath == "" {
		errs = append(errs, errors.New("terminal config path is required"))
	}
	if c.Terminal.Rows == 0 || c.Terminal.Cols == 0 {
		errs = append(errs, errors.New("terminal rows and cols must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
