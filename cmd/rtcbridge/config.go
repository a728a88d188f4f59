package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v2"

	"github.com/rtcbridge/rtcbridge/identity"
	"github.com/rtcbridge/rtcbridge/rtc"
)

// An ICEServer is a STUN or TURN server entry in the config file.
type ICEServer struct {
	URLs       []string `yaml:"urls" json:"urls"`
	Username   string   `yaml:"username,omitempty" json:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty" json:"credential,omitempty"`
}

// A Config is the on-disk configuration for rtcbridge.
type Config struct {
	KeyPair       identity.KeyPair
	SignalAddress string      `yaml:"signaladdress,omitempty" json:"signaladdress,omitempty"`
	ICEServers    []ICEServer `yaml:"iceservers,omitempty" json:"iceservers,omitempty"`
}

// LoadConfig loads the config off of the disk. The format follows the file
// extension: .json for JSON, YAML otherwise.
func LoadConfig(path string) (*Config, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	switch filepath.Ext(path) {
	case ".json":
		err = json.Unmarshal(bs, &cfg)
	default:
		err = yaml.Unmarshal(bs, &cfg)
	}
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save saves the config file.
func (cfg *Config) Save(path string) error {
	var bs []byte
	var err error
	switch filepath.Ext(path) {
	case ".json":
		bs, err = json.Marshal(cfg)
	default:
		bs, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, bs, 0600)
}

// RTCConfig maps the config's ICE servers into connection options.
func (cfg *Config) RTCConfig() rtc.Config {
	out := rtc.Config{}
	for _, server := range cfg.ICEServers {
		out.ICEServers = append(out.ICEServers, rtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return out
}
