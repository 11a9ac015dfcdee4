package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort    = 3050
	DefaultCharset = "UTF8"
)

type DatabaseConfig struct {
	Type       string `yaml:"type"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Database   string `yaml:"database"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Role       string `yaml:"role"`
	Charset    string `yaml:"charset"`
	AuthPlugin string `yaml:"auth_plugin"`
	WireCrypt  *bool  `yaml:"wire_crypt,omitempty"`
	Timezone   string `yaml:"timezone"`
}

// AdapterConfig tunes adapter behaviour that is not part of the connection.
type AdapterConfig struct {
	// ExactTableNames disables the singular/plural table name fallback.
	ExactTableNames bool   `yaml:"exact_table_names"`
	Isolation       string `yaml:"isolation"`
	Verbose         bool   `yaml:"verbose"`
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Adapter  AdapterConfig  `yaml:"adapter"`
}

func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills the fields a Firebird connection cannot do without.
func (c *Config) ApplyDefaults() {
	c.Database.Type = normalizeDatabaseType(c.Database.Type)

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = DefaultPort
	}
	if c.Database.Charset == "" {
		c.Database.Charset = DefaultCharset
	}
	c.Database.Charset = strings.ToUpper(c.Database.Charset)
}

// GetConnectionString renders the firebirdsql DSN:
// user:password@host:port/database?charset=...&role=...
func (c *Config) GetConnectionString() string {
	if c.Database.Type != "firebird" {
		return ""
	}

	params := url.Values{}
	if c.Database.Charset != "" {
		params.Set("charset", c.Database.Charset)
	}
	if c.Database.Role != "" {
		params.Set("role", c.Database.Role)
	}
	if c.Database.AuthPlugin != "" {
		params.Set("auth_plugin_name", c.Database.AuthPlugin)
	}
	if c.Database.WireCrypt != nil {
		params.Set("wire_crypt", strconv.FormatBool(*c.Database.WireCrypt))
	}
	if c.Database.Timezone != "" {
		params.Set("timezone", c.Database.Timezone)
	}

	var credentials string
	if c.Database.Username != "" {
		user := url.User(c.Database.Username)
		if c.Database.Password != "" {
			user = url.UserPassword(c.Database.Username, c.Database.Password)
		}
		credentials = user.String() + "@"
	}

	dsn := fmt.Sprintf("%s%s:%d/%s", credentials, c.Database.Host, c.Database.Port, c.Database.Database)
	if encoded := params.Encode(); encoded != "" {
		dsn += "?" + encoded
	}
	return dsn
}

func normalizeDatabaseType(dbType string) string {
	dbType = strings.ToLower(strings.TrimSpace(dbType))
	if dbType == "" {
		return "firebird"
	}

	switch dbType {
	case "firebird", "firebirdsql", "fb":
		return "firebird"
	default:
		return dbType
	}
}
