package config

import (
	"encoding/json"
	"os"
)

// Create new config instance
func NewConfig() *Config {
	return &Config{}
}

// Load configuration file in json format and fill in defaults for
// anything the file leaves unset.
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return err
	}
	c.applyDefaults()
	return nil
}
