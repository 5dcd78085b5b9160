package reel

import (
	"time"

	"github.com/tauraamui/dragonreel/pkg/configdef"
	"github.com/tauraamui/dragonreel/pkg/imgseq"
)

var Advance = advance

func NewPlayer(seq configdef.Sequence, loader *imgseq.Loader) {
	newPlayer(seq, loader)
}

func (s *server) Positions() map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	positions := make(map[string]time.Duration, len(s.players))
	for _, p := range s.players {
		positions[p.title] = p.Position()
	}
	return positions
}

func Positions(s Server) map[string]time.Duration {
	return s.(*server).Positions()
}
