package config

import (
	"github.com/tauraamui/dragonreel/internal/config"
	"github.com/tauraamui/dragonreel/pkg/configdef"
)

type Creator interface {
	configdef.Creator
}

func DefaultCreator() Creator {
	return config.DefaultCreator()
}
