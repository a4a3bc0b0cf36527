package config

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Read loads a JSON configuration file on top of Default and validates the result.
func Read(path string) (*WalkingConfig, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", path)
	}
	return Parse(data, path)
}

// Parse decodes JSON bytes on top of Default and validates the result. source names the input in
// error messages.
func Parse(data []byte, source string) (*WalkingConfig, error) {
	var attributes map[string]interface{}
	if err := json.Unmarshal(data, &attributes); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", source)
	}
	cfg, err := FromAttributes(attributes)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config %q", source)
	}
	return cfg, nil
}

// FromAttributes decodes an attribute map on top of Default. Keys that do not map to a field are rejected.
func FromAttributes(attributes map[string]interface{}) (*WalkingConfig, error) {
	cfg := Default()
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:  "json",
		Result:   &cfg,
		Metadata: &md,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, err
	}
	if len(md.Unused) > 0 {
		unused := append([]string(nil), md.Unused...)
		sort.Strings(unused)
		return nil, errors.Errorf("unknown config keys: %s", strings.Join(unused, ", "))
	}
	if err := cfg.Validate("walking"); err != nil {
		return nil, err
	}
	return &cfg, nil
}
