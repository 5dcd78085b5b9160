// Package reel hosts the configured image sequences: one loader and player
// per sequence, a shared prefetch scheduler and the clock that drives them.
package reel

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tauraamui/dragonreel/pkg/clock"
	"github.com/tauraamui/dragonreel/pkg/configdef"
	"github.com/tauraamui/dragonreel/pkg/database/models"
	"github.com/tauraamui/dragonreel/pkg/imgseq"
	"github.com/tauraamui/dragonreel/pkg/log"
	"github.com/tauraamui/dragonreel/pkg/prefetch"
	"github.com/tauraamui/dragonreel/pkg/video/imgreader"
	"github.com/tauraamui/xerror"
)

type Server interface {
	LoadConfiguration() error
	Open() []error
	OpenWithCancel(context.Context) []error
	Run()
	Stats() map[string]imgseq.Stats
	Shutdown() chan interface{}
}

// SessionStore receives one row per sequence when the server shuts down.
type SessionStore interface {
	Create(*models.PlaybackSession) error
}

// NewServer prepares a server which resolves its configuration through cr.
// A non-empty readerKind overrides the reader named in the configuration.
func NewServer(cr configdef.Resolver, readerKind string) Server {
	return NewServerWithStore(cr, readerKind, nil)
}

func NewServerWithStore(cr configdef.Resolver, readerKind string, store SessionStore) Server {
	return &server{
		configResolver: cr,
		readerKind:     readerKind,
		store:          store,
		scheduler:      prefetch.New(),
		shutdownDone:   make(chan interface{}),
	}
}

type server struct {
	configResolver configdef.Resolver
	readerKind     string
	store          SessionStore
	config         configdef.Values
	scheduler      *prefetch.Scheduler
	clock          *clock.Clock

	mu           sync.Mutex
	players      []*player
	running      bool
	closed       bool
	shutdownOnce sync.Once
	shutdownDone chan interface{}
}

func (s *server) LoadConfiguration() error {
	config, err := s.configResolver.Resolve()
	if err != nil {
		return err
	}

	s.config = config
	if len(s.readerKind) == 0 {
		s.readerKind = config.Reader
	}
	s.clock = clock.New(time.Duration(config.TickIntervalMS) * time.Millisecond)
	return nil
}

func (s *server) Open() []error {
	return s.OpenWithCancel(context.Background())
}

// OpenWithCancel opens every enabled sequence. A sequence that fails to open
// is reported and skipped, the rest are still served.
func (s *server) OpenWithCancel(ctx context.Context) []error {
	var errs []error

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	newReader := imgreader.Resolve(s.readerKind)
	settings := LoaderSettings(s.config)
	for _, seq := range s.config.Sequences {
		select {
		case <-ctx.Done():
			return errs
		default:
			if seq.Disabled {
				log.Warn("Sequence [%s] is disabled... skipping...", seq.Title)
				continue
			}

			log.Info("Opening sequence: [%s]...", seq.Title)
			loader := imgseq.NewLoader(s.scheduler, newReader(), settings)
			if description := loader.Initialize(seq.Path, seq.FPSOverride, seq.Loop); len(description) == 0 {
				loader.Close()
				errs = append(errs, xerror.Errorf("unable to open sequence [%s] at %s", seq.Title, seq.Path))
				continue
			}

			info := loader.Info()
			log.Info("Opened sequence successfully: [%s] %s %s", seq.Title, info.Dim, info.Format)
			s.players = append(s.players, newPlayer(seq, loader))
		}
	}
	return errs
}

// LoaderSettings converts configured values into per loader settings.
func LoaderSettings(values configdef.Values) imgseq.Settings {
	return imgseq.Settings{
		CacheBudget:      uint64(values.CacheSizeMB) * humanize.MiByte,
		BehindFraction:   float64(values.CacheBehindPercent) / 100,
		DefaultFrameRate: values.DefaultFrameRate,
	}
}

// Run starts playback. Players join the clock ahead of the scheduler so
// each tick requests frames before idle workers go looking for work.
func (s *server) Run() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.closed || s.clock == nil {
		return
	}
	s.running = true

	for _, p := range s.players {
		s.clock.AddSink(p)
	}
	s.scheduler.Initialize(s.config.WorkerThreads, s.clock)
	s.clock.Start()
}

func (s *server) Stats() map[string]imgseq.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make(map[string]imgseq.Stats, len(s.players))
	for _, p := range s.players {
		stats[p.title] = p.loader.Stats()
	}
	return stats
}

func (s *server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clock != nil {
		s.clock.Stop()
		s.clock.Wait()
	}

	for _, p := range s.players {
		s.persistSession(p)
		log.Warn("Closing sequence: [%s]...", p.title)
		if s.clock != nil {
			s.clock.RemoveSink(p)
		}
		p.loader.Close()
	}
	s.players = nil

	s.scheduler.Shutdown()
	s.running = false
	s.closed = true
	close(s.shutdownDone)
}

func (s *server) persistSession(p *player) {
	if s.store == nil {
		return
	}
	session := p.session()
	if err := s.store.Create(&session); err != nil {
		log.Error("Unable to store playback session for [%s]: %v", p.title, err)
		return
	}
	log.Info("Stored playback session for [%s]: %d hits, %d misses",
		p.title, session.SampleHits, session.SampleMisses)
}

func (s *server) Shutdown() chan interface{} {
	s.shutdownOnce.Do(s.shutdown)
	return s.shutdownDone
}

// SessionHistory lists the sessions recorded for a sequence, newest first.
type SessionHistory interface {
	LatestByTitle(title string, limit int) ([]models.PlaybackSession, error)
}

// Inspect opens the sequence at path without scheduling any reads and
// returns its description.
func Inspect(path string, values configdef.Values, readerKind string) (string, error) {
	return InspectWithHistory(path, values, readerKind, nil)
}

// InspectWithHistory adds how the last recorded session of every configured
// sequence at path performed.
func InspectWithHistory(path string, values configdef.Values, readerKind string, history SessionHistory) (string, error) {
	if len(readerKind) == 0 {
		readerKind = values.Reader
	}
	loader := imgseq.NewLoader(nil, imgreader.Resolve(readerKind)(), LoaderSettings(values))
	defer loader.Close()

	description := loader.Initialize(path, 0, false)
	if len(description) == 0 {
		return "", xerror.Errorf("unable to open image sequence at %s", path)
	}
	if history == nil {
		return description, nil
	}

	for _, seq := range values.Sequences {
		if filepath.Clean(seq.Path) != filepath.Clean(path) {
			continue
		}
		sessions, err := history.LatestByTitle(seq.Title, 1)
		if err != nil {
			log.Warn("Unable to look up sessions of [%s]: %v", seq.Title, err)
			continue
		}
		if len(sessions) == 0 {
			continue
		}
		last := sessions[0]
		description += fmt.Sprintf("    Last Session [%s]: %.1f%% hit rate, %d loaded, %d failed reads\n",
			seq.Title, last.HitRate()*100, last.FramesLoaded, last.FailedReads)
	}
	return description, nil
}
