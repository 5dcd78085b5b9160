// Package config exposes the default config file resolver, creator and
// destroyer to callers outside this module.
package config

import (
	"github.com/tauraamui/dragonreel/internal/config"
	"github.com/tauraamui/dragonreel/pkg/configdef"
)

type Resolver interface {
	configdef.Resolver
}

func DefaultResolver() Resolver {
	return config.DefaultResolver()
}

func Defaults() configdef.Values {
	return config.Defaults()
}
