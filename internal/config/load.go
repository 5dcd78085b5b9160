package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tauraamui/dragonreel/pkg/configdef"
	"github.com/tauraamui/dragonreel/pkg/log"
	"github.com/tauraamui/xerror"
)

const (
	vendorName     = "tacusci"
	appName        = "dragonreel"
	configFileName = "config.json"
)

var fs afero.Fs = afero.NewOsFs()

func load() (configdef.Values, error) {
	var values configdef.Values

	configPath, err := resolveConfigPath()
	if err != nil {
		return configdef.Values{}, err
	}

	log.Info("Resolved config file location: %s", configPath)
	file, err := readConfigFile(configPath)
	if err != nil {
		return configdef.Values{}, err
	}

	if err := unmarshal(file, &values); err != nil {
		return configdef.Values{}, err
	}

	if err = values.RunValidate(); err != nil {
		return configdef.Values{}, err
	}

	loadDefaults(&values, file)

	return values, nil
}

// explicitValues records which zero-able keys the file actually set.
type explicitValues struct {
	CacheSizeMB        *int `json:"cache_size_mb"`
	CacheBehindPercent *int `json:"cache_behind_percent"`
	Sequences          []struct {
		PlayRate *float64 `json:"play_rate"`
	} `json:"sequences"`
}

// loadDefaults fills in values left out of the file. Keys present in the
// file are kept even when zero, so a sequence with "play_rate": 0 stays paused.
func loadDefaults(values *configdef.Values, raw []byte) {
	explicit := explicitValues{}
	// already known to be valid json
	_ = json.Unmarshal(raw, &explicit)

	if explicit.CacheSizeMB == nil {
		values.CacheSizeMB = defaultSettings[CACHESIZEMB].(int)
	}
	if explicit.CacheBehindPercent == nil {
		values.CacheBehindPercent = defaultSettings[CACHEBEHINDPERCENT].(int)
	}
	if values.DefaultFrameRate == 0 {
		values.DefaultFrameRate = defaultSettings[DEFAULTFRAMERATE].(float64)
	}
	if values.TickIntervalMS == 0 {
		values.TickIntervalMS = defaultSettings[TICKINTERVALMS].(int)
	}
	if len(values.Reader) == 0 {
		values.Reader = defaultSettings[READER].(string)
	}
	if values.Sequences == nil {
		values.Sequences = defaultSettings[SEQUENCES].([]configdef.Sequence)
	}

	for i := range values.Sequences {
		if i < len(explicit.Sequences) && explicit.Sequences[i].PlayRate != nil {
			continue
		}
		values.Sequences[i].PlayRate = defaultSettings[PLAYRATE].(float64)
	}
}

var readConfigFile = func(path string) ([]byte, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, xerror.Errorf("unable to read from path %s: %w", path, err)
	}
	return data, nil
}

func unmarshal(content []byte, values *configdef.Values) error {
	err := json.Unmarshal(content, values)
	if err != nil {
		return errors.Errorf("parsing configuration error: %v", err)
	}
	return nil
}

func resolveConfigPath() (string, error) {
	configPath := os.Getenv("DRAGON_REEL_CONFIG")
	if len(configPath) > 0 {
		return configPath, nil
	}

	configParentDir, err := userConfigDir()
	if err != nil {
		return "", xerror.Errorf("unable to resolve %s location: %w", configFileName, err)
	}

	return filepath.Join(
		configParentDir,
		vendorName,
		appName,
		configFileName), nil
}

var userConfigDir = func() (string, error) {
	return os.UserConfigDir()
}
