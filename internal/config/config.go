// Package config loads choppy's YAML configuration, applying .env and
// CHOPPY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/me/choppy/pkg/model"
)

// ErrNotFound is returned when an explicitly requested config file is missing.
var ErrNotFound = errors.New("config file not found")

// LocalServer is the engine name that always resolves, configured or not.
const LocalServer = "localhost"

// Config is the full configuration file.
type Config struct {
	General General           `yaml:"general"`
	Servers map[string]Server `yaml:"servers"`
	OSS     OSS               `yaml:"oss"`
	API     ServerConfig      `yaml:"api"`

	// Path is the file the config was read from, empty when defaults only.
	Path string `yaml:"-"`
}

// General holds settings shared by every command.
type General struct {
	AppRootDir  string `yaml:"app_root_dir"`
	WomtoolPath string `yaml:"womtool_path"`
	Username    string `yaml:"username"`
	DBPath      string `yaml:"db_path"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Server is one execution-engine endpoint.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// URL returns the engine base URL. Hosts that already carry a scheme are
// used as given.
func (s Server) URL() string {
	host := strings.TrimRight(s.Host, "/")
	if strings.Contains(host, "://") {
		return host
	}
	if s.Port == 0 {
		return "http://" + host
	}
	return "http://" + host + ":" + strconv.Itoa(s.Port)
}

// OSS configures the object store used by upload, download and listfiles.
type OSS struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// Configured reports whether endpoint and credentials are all set.
func (o OSS) Configured() bool {
	return o.Endpoint != "" && o.AccessKey != "" && o.SecretKey != ""
}

// ServerConfig holds configuration for the choppy API server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite database path (":memory:" for testing)
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home := homeDir()
	return &Config{
		General: General{
			AppRootDir: filepath.Join(home, "apps"),
			DBPath:     filepath.Join(home, "choppy.db"),
			Username:   os.Getenv("USER"),
			LogLevel:   "info",
			LogFormat:  "text",
		},
		Servers: map[string]Server{},
		API:     DefaultServerConfig(),
	}
}

func homeDir() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return ".choppy"
	}
	return filepath.Join(h, ".choppy")
}

// DefaultPath returns $CHOPPY_CONFIG or ~/.choppy/choppy.yaml.
func DefaultPath() string {
	if p := os.Getenv("CHOPPY_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(homeDir(), "choppy.yaml")
}

// Load reads the config at path (DefaultPath when empty). A .env file in the
// working directory is loaded first; a missing default file yields defaults,
// a missing explicit file is ErrNotFound.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.Path = path
	case os.IsNotExist(err) && !explicit:
	case os.IsNotExist(err):
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	if cfg.Servers == nil {
		cfg.Servers = map[string]Server{}
	}
	if cfg.API.DBPath == "" {
		cfg.API.DBPath = cfg.General.DBPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.General.AppRootDir, "CHOPPY_APP_ROOT")
	set(&c.General.WomtoolPath, "CHOPPY_WOMTOOL")
	set(&c.General.Username, "CHOPPY_USERNAME")
	set(&c.General.DBPath, "CHOPPY_DB")
	set(&c.OSS.Endpoint, "CHOPPY_OSS_ENDPOINT")
	set(&c.OSS.AccessKey, "CHOPPY_OSS_ACCESS_KEY")
	set(&c.OSS.SecretKey, "CHOPPY_OSS_SECRET_KEY")
	set(&c.OSS.Bucket, "CHOPPY_OSS_BUCKET")
}

// Validate checks server entries and the OSS endpoint.
func (c *Config) Validate() error {
	for _, name := range sortedNames(c.Servers) {
		s := c.Servers[name]
		if strings.TrimSpace(s.Host) == "" {
			return fmt.Errorf("server %q: host is empty", name)
		}
		if s.Port < 0 || s.Port > 65535 || (s.Port == 0 && !strings.Contains(s.Host, "://")) {
			return fmt.Errorf("server %q: port %d out of range 1-65535", name, s.Port)
		}
		if _, err := url.Parse(s.URL()); err != nil {
			return fmt.Errorf("server %q: %w", name, err)
		}
	}
	if strings.Contains(c.OSS.Endpoint, "://") {
		return fmt.Errorf("oss endpoint %q must not include a scheme", c.OSS.Endpoint)
	}
	return nil
}

func sortedNames(m map[string]Server) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ServerNames returns localhost plus every configured server, sorted.
func (c *Config) ServerNames() []string {
	set := map[string]bool{LocalServer: true}
	for n := range c.Servers {
		set[n] = true
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Server resolves an engine by name; "" means localhost.
func (c *Config) Server(name string) (Server, error) {
	if name == "" {
		name = LocalServer
	}
	if s, ok := c.Servers[name]; ok {
		return s, nil
	}
	if name == LocalServer {
		return Server{Host: "localhost", Port: 8000}, nil
	}
	return Server{}, fmt.Errorf("%q: %w", name, model.ErrServerNotConfigured)
}
