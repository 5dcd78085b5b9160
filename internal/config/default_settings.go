package config

import "github.com/tauraamui/dragonreel/pkg/configdef"

type defaultSettingKey uint

const (
	CACHESIZEMB        defaultSettingKey = 0x0
	CACHEBEHINDPERCENT defaultSettingKey = 0x1
	DEFAULTFRAMERATE   defaultSettingKey = 0x2
	TICKINTERVALMS     defaultSettingKey = 0x3
	READER             defaultSettingKey = 0x4
	PLAYRATE           defaultSettingKey = 0x5
	SEQUENCES          defaultSettingKey = 0x6
)

var defaultSettings = map[defaultSettingKey]interface{}{
	CACHESIZEMB:        1024,
	CACHEBEHINDPERCENT: 25,
	DEFAULTFRAMERATE:   24.0,
	TICKINTERVALMS:     16,
	READER:             configdef.ReaderFile,
	PLAYRATE:           1.0,
	SEQUENCES:          []configdef.Sequence{},
}

// Defaults is the configuration written by setup.
func Defaults() configdef.Values {
	return configdef.Values{
		CacheSizeMB:        defaultSettings[CACHESIZEMB].(int),
		CacheBehindPercent: defaultSettings[CACHEBEHINDPERCENT].(int),
		DefaultFrameRate:   defaultSettings[DEFAULTFRAMERATE].(float64),
		TickIntervalMS:     defaultSettings[TICKINTERVALMS].(int),
		Reader:             defaultSettings[READER].(string),
		Sequences:          []configdef.Sequence{},
	}
}
