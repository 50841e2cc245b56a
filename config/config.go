package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Secret string `yaml:"secret" json:"secret"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

// OfflineConfig configures the offline caching layer that fronts the
// application's own asset origin.
type OfflineConfig struct {
	// Origin is the upstream base URL the application shell assets are
	// fetched from.
	Origin string `yaml:"origin" json:"origin"`
	// Version tags the cache generations; bumping it evicts caches from
	// prior deployments on the next activation.
	Version string `yaml:"version" json:"version"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system" json:"system"`
	Web      WebConfig     `yaml:"web" json:"web"`
	Database DBConfig      `yaml:"database" json:"database"`
	Logger   LogConfig     `yaml:"logger" json:"logger"`
	Offline  OfflineConfig `yaml:"offline" json:"offline"`
}

func (c *AppConfig) GetLogDir() string {
	return filepath.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetDataDir() string {
	return filepath.Join(c.System.Workdir, "data")
}

func (c *AppConfig) InitDirs() error {
	if err := os.MkdirAll(c.GetLogDir(), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(c.GetDataDir(), 0o755)
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "tinypos",
		Location: "Asia/Jakarta",
		Workdir:  "/var/tinypos",
		Debug:    true,
	},
	Web: WebConfig{
		Host:   "127.0.0.1",
		Port:   1816,
		Secret: "9b6de5cc-tinypos-1816-8112-f4400a498f30",
	},
	Database: DBConfig{
		Type:     "sqlite",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "tinypos",
		User:     "postgres",
		Passwd:   "",
		MaxConn:  50,
		IdleConn: 10,
		Debug:    false,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/tinypos/tinypos.log",
	},
	Offline: OfflineConfig{
		Origin:  "https://assets.tinypos.io",
		Version: "v1",
	},
}

// DefaultAppConfigYaml renders the built-in defaults, used by -initcfg to
// seed a config file.
func DefaultAppConfigYaml() ([]byte, error) {
	return yaml.Marshal(DefaultAppConfig)
}

func setEnvValue(name string, val *string) {
	evalue := os.Getenv(name)
	if evalue != "" {
		*val = evalue
	}
}

func setEnvBoolValue(name string, val *bool) {
	evalue := os.Getenv(name)
	if evalue != "" {
		*val = evalue == "true" || evalue == "1" || evalue == "on"
	}
}

// LoadConfig loads the application config, ordering: explicit path argument,
// TINYPOS_CONFIG env var, /etc/tinypos.yml, built-in defaults.
func LoadConfig(cfile string) *AppConfig {
	if cfile == "" {
		cfile = os.Getenv("TINYPOS_CONFIG")
	}
	if cfile == "" {
		cfile = "/etc/tinypos.yml"
	}

	cfg := new(AppConfig)
	*cfg = *DefaultAppConfig

	if fileExists(cfile) {
		data, err := os.ReadFile(cfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read config %s: %v\n", cfile, err)
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "parse config %s: %v\n", cfile, err)
		}
	}

	setEnvValue("TINYPOS_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvBoolValue("TINYPOS_SYSTEM_DEBUG", &cfg.System.Debug)
	setEnvValue("TINYPOS_WEB_HOST", &cfg.Web.Host)
	setEnvValue("TINYPOS_WEB_SECRET", &cfg.Web.Secret)
	setEnvValue("TINYPOS_DB_TYPE", &cfg.Database.Type)
	setEnvValue("TINYPOS_DB_HOST", &cfg.Database.Host)
	setEnvValue("TINYPOS_DB_NAME", &cfg.Database.Name)
	setEnvValue("TINYPOS_DB_USER", &cfg.Database.User)
	setEnvValue("TINYPOS_DB_PWD", &cfg.Database.Passwd)
	setEnvValue("TINYPOS_OFFLINE_ORIGIN", &cfg.Offline.Origin)
	setEnvValue("TINYPOS_OFFLINE_VERSION", &cfg.Offline.Version)

	return cfg
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
