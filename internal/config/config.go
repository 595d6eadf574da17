package config

import (
	"bytes"
	"log"
	"os"
	"path"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var configTemplate = `# config.toml

[server]
  # Hostname or IP address for the engine API to listen on.
  # The API is meant for the desktop UI on the same machine.
  # Default: "127.0.0.1"
  host = "{{ .host }}"

  # Port for the engine API to listen on.
  # Default: 8585
  port = 8585

  # Base URL when served under a subdirectory.
  # Optional.
  # Default: ""
  #base_url = ""

[database]
  # Database type to use.
  # Supported: "sqlite", "postgres"
  # Default: "sqlite"
  type = "sqlite"

  # --- PostgreSQL Settings ---
  # Only used if database.type is set to "postgres".
  [database.postgres]
    # Default: "localhost"
    host = "localhost"

    # Default: 5432
    port = 5432

    # Default: "postgres"
    database = "postgres"

    # Default: "postgres"
    username = "postgres"

    # Default: "postgres"
    password = "postgres"

    # Options: "disable", "allow", "prefer", "require", "verify-ca", "verify-full"
    # Default: "disable"
    ssl_mode = "disable"

[logging]
  # Log file path. Empty means stderr only.
  # Optional.
  # Default: ""
  path = "log/"

  # Log level.
  # Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
  # Default: "DEBUG"
  level = "DEBUG"

  # Maximum size of a log file in megabytes before rotation.
  # Default: 50
  max_file_size = 50

  # Maximum number of rotated log files to keep.
  # Default: 3
  max_backup_count = 3

[vault]
  # Path to the credential-encryption key file. Created on first use.
  # Default: "vault.key" inside the config directory.
  key_path = "{{ .keyPath }}"

  # Optional master passphrase. When set, the encryption key is derived
  # from it instead of read from the key file.
  # Default: ""
  #master_passphrase = ""
`

func writeConfig(configPath string, configFile string) error {
	cfgPath := filepath.Join(configPath, configFile)

	// check if configPath exists, if not create it
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(configPath, os.ModePerm); err != nil {
			log.Println(err)
			return err
		}
	}

	// check if config exists, if not create it
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		f, createErr := os.Create(cfgPath)
		if createErr != nil {
			log.Printf("error creating file: %q", createErr)
			return createErr
		}
		defer func(f *os.File) {
			if errClose := f.Close(); errClose != nil {
				log.Printf("error closing file: %q", errClose)
			}
		}(f)

		tmpl, tmplErr := template.New("config").Parse(configTemplate)
		if tmplErr != nil {
			return errors.Wrap(tmplErr, "could not create config template")
		}

		tmplVars := map[string]string{
			"host":    "127.0.0.1",
			"keyPath": filepath.Join(configPath, "vault.key"),
		}

		var buffer bytes.Buffer
		if execErr := tmpl.Execute(&buffer, &tmplVars); execErr != nil {
			return errors.Wrap(execErr, "could not write config template output")
		}

		if _, writeErr := f.WriteString(buffer.String()); writeErr != nil {
			log.Printf("error writing contents to file: %v %q", configPath, writeErr)
			return writeErr
		}

		return f.Sync()
	}

	return nil
}

type Config interface {
	DynamicReload(log logger.Logger)
}

type AppConfig struct {
	Config *domain.Config
	m      sync.Mutex
}

func New(configPath string, version string) *AppConfig {
	c := &AppConfig{}
	c.defaults()
	c.Config.Version = version
	c.Config.ConfigPath = configPath

	c.load(configPath)

	return c
}

func (c *AppConfig) defaults() {
	c.Config = &domain.Config{
		Version:    "dev",
		ConfigPath: "",
		Server: domain.ServerConfig{
			Host:    "127.0.0.1",
			Port:    8585,
			BaseURL: "",
		},
		Database: domain.DatabaseConfig{
			Type: "sqlite",
			Postgres: domain.PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "postgres",
				User:     "postgres",
				Pass:     "postgres",
				SslMode:  "disable",
			},
		},
		Logging: domain.LoggingConfig{
			Path:           "",
			Level:          "DEBUG",
			MaxFileSize:    50,
			MaxBackupCount: 3,
		},
		Vault: domain.VaultConfig{
			KeyPath: "vault.key",
		},
	}
}

func (c *AppConfig) load(configPath string) {
	viper.SetConfigType("toml")
	configPath = path.Clean(configPath)

	if configPath != "" {
		if err := writeConfig(configPath, "config.toml"); err != nil {
			log.Printf("writeConfig error during load: %q", err)
		}
		viper.SetConfigFile(path.Join(configPath, "config.toml"))
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/weibodr-sync")
		viper.AddConfigPath("$HOME/.weibodr-sync")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Config file not found, using defaults: %s", viper.ConfigFileUsed())
		} else {
			log.Printf("Config read error: %q. Using defaults.", err)
		}
	}

	if err := viper.Unmarshal(&c.Config); err != nil {
		log.Fatalf("Could not unmarshal config file into struct: %v. Config file used: %s", err, viper.ConfigFileUsed())
	}
}

func (c *AppConfig) DynamicReload(log logger.Logger) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		c.m.Lock()
		defer c.m.Unlock()

		log.Info().Msgf("Config file changed: %s. Reloading configuration.", e.Name)

		if err := viper.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("Error reading config file during dynamic reload")
			return
		}

		var newConfig domain.Config
		// version and configPath are not from the file
		newConfig.Version = c.Config.Version
		newConfig.ConfigPath = c.Config.ConfigPath

		if err := viper.Unmarshal(&newConfig); err != nil {
			log.Error().Err(err).Msg("Error unmarshalling config during dynamic reload")
			return
		}

		c.Config = &newConfig

		log.SetLogLevel(c.Config.Logging.Level)

		log.Debug().Msg("Configuration reloaded")
	})
	viper.WatchConfig()
}
