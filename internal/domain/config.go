package domain

// ServerConfig holds the local API server settings
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// PostgresConfig holds PostgreSQL-specific settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"username"`
	Pass     string `mapstructure:"password"`
	SslMode  string `mapstructure:"ssl_mode"`
}

// DatabaseConfig holds general database settings and nested specific configs
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Path           string `mapstructure:"path"`
	Level          string `mapstructure:"level"`
	MaxFileSize    int    `mapstructure:"max_file_size"`
	MaxBackupCount int    `mapstructure:"max_backup_count"`
}

// VaultConfig holds credential-encryption settings. The key file is created on
// first use when it does not exist. When a master passphrase is configured the
// key is derived from it instead of read from the key file.
type VaultConfig struct {
	KeyPath          string `mapstructure:"key_path"`
	MasterPassphrase string `mapstructure:"master_passphrase"`
}

// Config holds the engine's configuration, mapped from config.toml
type Config struct {
	Version    string // not from config file
	ConfigPath string // internal use

	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Vault    VaultConfig    `mapstructure:"vault"`
}
