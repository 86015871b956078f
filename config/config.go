/*
	Package config loads the TOML configuration shared by the omerokv commands.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/janelia-flyem/omerokv/client"
	"github.com/janelia-flyem/omerokv/imgimport"
	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/janelia-flyem/omerokv/server"
)

// PasswordEnv is read for the platform password when the configuration has none.
const PasswordEnv = "OMEROKV_PASSWORD"

type serverConfig struct {
	Host     string
	User     string
	Password string
}

// Config is the full TOML configuration.
type Config struct {
	Server    serverConfig // the image platform
	Client    client.Config
	Logging   omerokv.LogConfig
	Import    imgimport.Config
	Devserver server.Config

	location string
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: serverConfig{Host: "http://" + server.DefaultWebAddress},
		Import: imgimport.Config{Workers: 1},
	}
}

// LoadConfig reads a TOML file over the defaults.  Relative file paths in it are
// taken relative to the file's directory.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	c := Default()
	if _, err := toml.DecodeFile(filename, c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	c.location = filename
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	omerokv.Debugf("Loaded configuration from %s\n", filename)
	return c, nil
}

// Location returns the file the configuration was loaded from, if any.
func (c *Config) Location() string {
	return c.location
}

func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error

	configDir := filepath.Dir(configPath)

	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = omerokv.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path")
		}
	}
	if c.Import.Journal != "" {
		c.Import.Journal, err = omerokv.ConvertToAbsolute(c.Import.Journal, configDir)
		if err != nil {
			return fmt.Errorf("error converting import journal setting to absolute path")
		}
	}
	if strings.HasPrefix(c.Import.Source, "file://") {
		dir := strings.TrimPrefix(c.Import.Source, "file://")
		if dir != "" && !filepath.IsAbs(dir) {
			abs, err := omerokv.ConvertToAbsolute(dir, configDir)
			if err != nil {
				return fmt.Errorf("error converting import source to absolute path")
			}
			c.Import.Source = "file://" + filepath.ToSlash(abs)
		}
	}
	return nil
}

// ClientConfig returns the client settings with the [server] connection applied.
func (c *Config) ClientConfig() client.Config {
	cc := c.Client
	if c.Server.Host != "" {
		cc.Host = c.Server.Host
	}
	if c.Server.User != "" {
		cc.User = c.Server.User
	}
	if c.Server.Password != "" {
		cc.Password = c.Server.Password
	}
	if cc.Password == "" {
		cc.Password = os.Getenv(PasswordEnv)
	}
	return cc
}
