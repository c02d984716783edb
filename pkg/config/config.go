// Package config loads and validates the daemon's configuration file.
//
// The file is flat "Key = Value" text. Every key has a default, so a missing
// file yields a usable development config; an unrecognised key is an error
// so typos fail loudly at startup instead of silently running defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/crutech/nydus/pkg/validation"
)

// DefaultPath is where the daemon looks for its config when no path is
// given on the command line.
const DefaultPath = "/etc/nydus/nydus.conf"

// Config file keys.
const (
	KeyIPAddr        = "IpAddr"
	KeyPort          = "Port"
	KeyCertFile      = "CertFile"
	KeyCertPrivKey   = "CertPrivKey"
	KeyMcVersion     = "McVersion"
	KeyMSALClientID  = "MSALClientID"
	KeyAllocFile     = "AllocFile"
	KeyAccountsFile  = "AccountsFile"
	KeyMSALCacheFile = "MSALCacheFile"
	KeyCaChainFile   = "CaChainFile"
	KeyServerIPAddr  = "ServerIpAddr"
)

// defaults maps every recognised key to its default value. Membership in
// this map is what makes a key recognised.
var defaults = map[string]string{
	KeyIPAddr:        "192.168.1.1",
	KeyPort:          "2011",
	KeyCertFile:      "nydus-server.crt",
	KeyCertPrivKey:   "nydus-server.key",
	KeyMcVersion:     "1.20.6",
	KeyMSALClientID:  "1ab23456-7890-1c2d-e3fg-45h6789ijk01",
	KeyAllocFile:     "nydus-alloc.csv",
	KeyAccountsFile:  "nydus-accounts.txt",
	KeyMSALCacheFile: "nydus-msal-cache.json",
	KeyCaChainFile:   "",
	KeyServerIPAddr:  "",
}

// Config is the daemon configuration. CaChainFile and ServerIpAddr are
// client-side settings; they are accepted so one file can be shared between
// the daemon and the workstations, but the daemon never reads them.
type Config struct {
	IPAddr        string
	Port          int
	CertFile      string
	CertPrivKey   string
	McVersion     string
	MSALClientID  string
	AllocFile     string
	AccountsFile  string
	MSALCacheFile string
	CaChainFile   string
	ServerIPAddr  string
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	values := make(map[string]string, len(defaults))
	for key, value := range defaults {
		values[key] = value
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		for _, key := range v.AllKeys() {
			canonical, ok := recogniseKey(key)
			if !ok {
				return nil, fmt.Errorf("unrecognised config key %q in %s", key, path)
			}
			values[canonical] = strings.TrimSpace(v.GetString(key))
		}
	}

	cfg := &Config{
		IPAddr:        values[KeyIPAddr],
		CertFile:      values[KeyCertFile],
		CertPrivKey:   values[KeyCertPrivKey],
		McVersion:     values[KeyMcVersion],
		MSALClientID:  values[KeyMSALClientID],
		AllocFile:     values[KeyAllocFile],
		AccountsFile:  values[KeyAccountsFile],
		MSALCacheFile: values[KeyMSALCacheFile],
		CaChainFile:   values[KeyCaChainFile],
		ServerIPAddr:  values[KeyServerIPAddr],
	}
	if err := validation.ValidatePort(values[KeyPort]); err != nil {
		return nil, fmt.Errorf("config key %s: %w", KeyPort, err)
	}
	cfg.Port, _ = strconv.Atoi(values[KeyPort])

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// recogniseKey maps a key as viper reports it back to its canonical name.
// Keys in the top of an INI file surface under the "default" section, and
// viper lowercases everything.
func recogniseKey(key string) (string, bool) {
	key = strings.TrimPrefix(strings.ToLower(key), "default.")
	for canonical := range defaults {
		if strings.ToLower(canonical) == key {
			return canonical, true
		}
	}
	return "", false
}

// Validate checks every value the daemon consumes. Client-side keys are not
// validated here.
func (c *Config) Validate() error {
	if err := validation.ValidateIPAddr(c.IPAddr); err != nil {
		return fmt.Errorf("config key %s: %w", KeyIPAddr, err)
	}
	if err := validation.ValidateMinecraftVersion(c.McVersion); err != nil {
		return fmt.Errorf("config key %s: %w", KeyMcVersion, err)
	}
	if err := validation.ValidateClientID(c.MSALClientID); err != nil {
		return fmt.Errorf("config key %s: %w", KeyMSALClientID, err)
	}
	for key, value := range map[string]string{
		KeyCertFile:      c.CertFile,
		KeyCertPrivKey:   c.CertPrivKey,
		KeyAllocFile:     c.AllocFile,
		KeyAccountsFile:  c.AccountsFile,
		KeyMSALCacheFile: c.MSALCacheFile,
	} {
		if value == "" {
			return fmt.Errorf("config key %s: path cannot be empty", key)
		}
	}
	return nil
}

// ListenAddr returns the host:port the daemon should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.IPAddr, c.Port)
}
