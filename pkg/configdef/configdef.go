package configdef

import (
	"errors"
	"fmt"

	"gopkg.in/dealancer/validate.v2"
)

const (
	ReaderFile      = "file"
	ReaderSynthetic = "synthetic"
)

type Sequence struct {
	Title       string  `json:"title" validate:"empty=false"`
	Path        string  `json:"path" validate:"empty=false"`
	FPSOverride float64 `json:"fps_override" validate:"gte=0 & lte=240"`
	Loop        bool    `json:"loop"`
	PlayRate    float64 `json:"play_rate" validate:"gte=-8 & lte=8"`
	Disabled    bool    `json:"disabled"`
}

type Values struct {
	Debug              bool       `json:"debug"`
	CacheSizeMB        int        `json:"cache_size_mb" validate:"gte=0"`
	CacheBehindPercent int        `json:"cache_behind_percent" validate:"gte=0 & lte=100"`
	WorkerThreads      int        `json:"worker_threads" validate:"gte=0 & lte=256"`
	DefaultFrameRate   float64    `json:"default_frame_rate" validate:"gte=0 & lte=240"`
	TickIntervalMS     int        `json:"tick_interval_ms" validate:"gte=0 & lte=1000"`
	Reader             string     `json:"reader"`
	Sequences          []Sequence `json:"sequences"`
}

func (v Values) RunValidate() error {
	if err := validate.Validate(&v); err != nil {
		return err
	}
	return v.Validate()
}

func (v Values) Validate() error {
	const validationErrorHeader = "validation failed: %w"
	if hasDupSequenceTitles(v.Sequences) {
		return fmt.Errorf(validationErrorHeader, errors.New("sequence titles must be unique"))
	}
	switch v.Reader {
	case "", ReaderFile, ReaderSynthetic:
	default:
		return fmt.Errorf(validationErrorHeader, fmt.Errorf("unknown frame reader %q", v.Reader))
	}
	return nil
}

// EnabledSequences filters out sequences marked as disabled.
func (v Values) EnabledSequences() []Sequence {
	enabled := []Sequence{}
	for _, seq := range v.Sequences {
		if seq.Disabled {
			continue
		}
		enabled = append(enabled, seq)
	}
	return enabled
}

func hasDupSequenceTitles(sequences []Sequence) (hasDup bool) {
	hasDup = false
	if len(sequences) == 0 {
		return
	}

	seen := make(map[string]struct{}, len(sequences))
	for _, seq := range sequences {
		if _, ok := seen[seq.Title]; ok {
			hasDup = true
			return
		}
		seen[seq.Title] = struct{}{}
	}
	return
}
