package bridge

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// TranslatorConfig is the Translator's immutable-after-construction
// configuration. OurMAC is a string here, not a
// net.HardwareAddr, so the struct round-trips cleanly through YAML; New
// parses and validates it.
type TranslatorConfig struct {
	OurMAC          string `yaml:"our_mac"`
	LearnIP         bool   `yaml:"learn_ip"`
	LearnGatewayMAC bool   `yaml:"learn_gateway_mac"`
	HandleARP       bool   `yaml:"handle_arp"`
	ArpTimeoutMS    uint32 `yaml:"arp_timeout_ms"` // reserved, unused
	Verbose         bool   `yaml:"verbose"`
}

// ParseConfigYAML decodes a TranslatorConfig from YAML bytes. It performs no
// I/O of its own; reading the file or stream is the caller's job.
func ParseConfigYAML(data []byte) (TranslatorConfig, error) {
	var cfg TranslatorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TranslatorConfig{}, fmt.Errorf("bridge: parse config: %w", err)
	}
	return cfg, nil
}
