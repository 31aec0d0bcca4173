package config

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// YAML renders cfg as a config file Load can read back
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# dcw configuration\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
