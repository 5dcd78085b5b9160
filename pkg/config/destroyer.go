package config

import (
	"github.com/tauraamui/dragonreel/internal/config"
	"github.com/tauraamui/dragonreel/pkg/configdef"
)

type Destroyer interface {
	configdef.Destroyer
}

func DefaultDestroyer() Destroyer {
	return config.DefaultDestroyer()
}
