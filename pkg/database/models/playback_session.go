package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func init() {
	registerForAutomigration(&PlaybackSession{})
}

// PlaybackSession records how well one sequence's cache kept up with
// playback for the lifetime of the service.
type PlaybackSession struct {
	gorm.Model
	UUID            string
	Title           string `gorm:"index"`
	Path            string
	Frames          int
	CacheCapacity   int
	SampleHits      int
	SampleMisses    int
	FramesLoaded    int
	FramesDiscarded int
	FailedReads     int
}

func (s *PlaybackSession) BeforeCreate(tx *gorm.DB) error {
	s.UUID = uuid.NewString()
	return nil
}

// HitRate is the share of samples served from the cache, zero when nothing
// was sampled.
func (s PlaybackSession) HitRate() float64 {
	total := s.SampleHits + s.SampleMisses
	if total == 0 {
		return 0
	}
	return float64(s.SampleHits) / float64(total)
}
