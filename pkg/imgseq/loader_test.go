package imgseq_test

import (
	"fmt"
	"image"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"
	"github.com/tauraamui/dragonreel/pkg/clock"
	"github.com/tauraamui/dragonreel/pkg/imgseq"
	"github.com/tauraamui/dragonreel/pkg/prefetch"
	"github.com/tauraamui/dragonreel/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

type fakeReader struct {
	info    videoframe.Info
	infoErr error
	readErr error
	onRead  func(path string)

	mu    sync.Mutex
	reads []string
}

func newFakeReader(fps float64) *fakeReader {
	return &fakeReader{info: videoframe.Info{
		Dim:              videoframe.Dimensions{W: 4, H: 4},
		FrameRate:        fps,
		UncompressedSize: 4 * 4 * 4,
		Format:           videoframe.FormatRGBA8,
		Compression:      "png",
	}}
}

func (r *fakeReader) GetFrameInfo(path string) (videoframe.Info, error) {
	return r.info, r.infoErr
}

func (r *fakeReader) ReadFrame(path string) (*videoframe.Frame, error) {
	r.mu.Lock()
	r.reads = append(r.reads, path)
	r.mu.Unlock()
	if r.onRead != nil {
		r.onRead(path)
	}
	if r.readErr != nil {
		return nil, r.readErr
	}
	img := image.NewRGBA(image.Rect(0, 0, r.info.Dim.W, r.info.Dim.H))
	return videoframe.New(img, videoframe.FormatRGBA8, img.Stride), nil
}

func (r *fakeReader) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reads)
}

type recordingRegistrar struct {
	registered   []*prefetch.SourceRef
	unregistered []*prefetch.SourceRef
}

func (r *recordingRegistrar) RegisterLoader(ref *prefetch.SourceRef) {
	r.registered = append(r.registered, ref)
}

func (r *recordingRegistrar) UnregisterLoader(ref *prefetch.SourceRef) {
	r.unregistered = append(r.unregistered, ref)
}

// 4x4 RGBA frames are 64 bytes, so a 256 byte budget caches four frames,
// one of which sits behind the playhead.
var testSettings = imgseq.Settings{
	CacheBudget:      256,
	BehindFraction:   0.25,
	DefaultFrameRate: 24,
}

func drainSync(l *imgseq.Loader) []int {
	indices := []int{}
	for work := l.GetWork(); work != nil; work = l.GetWork() {
		indices = append(indices, imgseq.WorkIndex(work))
		work.Execute()
	}
	return indices
}

type LoaderTestSuite struct {
	suite.Suite
	is              *is.I
	fs              afero.Fs
	reader          *fakeReader
	registrar       *recordingRegistrar
	restoreFS       func()
	restoreMemProbe func()
}

func (suite *LoaderTestSuite) SetupTest() {
	suite.is = is.New(suite.T())
	suite.fs = afero.NewMemMapFs()
	suite.restoreFS = imgseq.OverloadFS(suite.fs)
	suite.restoreMemProbe = imgseq.OverloadAvailableMemory(func() (uint64, bool) {
		return 1 << 40, true
	})
	suite.reader = newFakeReader(10)
	suite.registrar = &recordingRegistrar{}
	suite.writeSequence("/seq", 10)
}

func (suite *LoaderTestSuite) TearDownTest() {
	suite.restoreFS()
	suite.restoreMemProbe()
}

func (suite *LoaderTestSuite) writeSequence(dir string, frames int) {
	suite.is.NoErr(suite.fs.MkdirAll(dir, 0755))
	for i := 0; i < frames; i++ {
		suite.is.NoErr(afero.WriteFile(suite.fs, fmt.Sprintf("%s/frame_%04d.png", dir, i), []byte{}, 0644))
	}
}

func (suite *LoaderTestSuite) openLoader(settings imgseq.Settings, loop bool) *imgseq.Loader {
	l := imgseq.NewLoader(suite.registrar, suite.reader, settings)
	suite.is.True(len(l.Initialize("/seq", 0, loop)) > 0)
	return l
}

func (suite *LoaderTestSuite) TestInitializeSizesCacheFromBudget() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	stats := l.Stats()
	is.Equal(stats.CacheCapacity, 4)
	is.Equal(stats.NumLoadAhead, 3)
	is.Equal(stats.NumLoadBehind, 1)
	is.Equal(l.NumFrames(), 10)
	is.Equal(l.FrameRate(), 10.0)
	is.Equal(l.Duration(), time.Second)
	is.Equal(l.Info().Dim, videoframe.Dimensions{W: 4, H: 4})
	is.Equal(l.Info().Format, videoframe.FormatRGBA8)
	is.True(l.IsInitialized())
	is.Equal(len(suite.registrar.registered), 1)
}

func (suite *LoaderTestSuite) TestInitializeClampsCapacityToFrameCount() {
	is := suite.is
	l := suite.openLoader(imgseq.Settings{CacheBudget: 1 << 30, BehindFraction: 0.25}, false)

	stats := l.Stats()
	is.Equal(stats.CacheCapacity, 10)
	is.Equal(stats.NumLoadBehind, 3)
	is.Equal(stats.NumLoadAhead, 7)
}

func (suite *LoaderTestSuite) TestInitializeLimitsBudgetToAvailableMemory() {
	is := suite.is
	suite.restoreMemProbe()
	suite.restoreMemProbe = imgseq.OverloadAvailableMemory(func() (uint64, bool) {
		return 128, true
	})

	l := suite.openLoader(testSettings, false)
	is.Equal(l.Stats().CacheCapacity, 2)
	is.Equal(l.Stats().NumLoadBehind, 1)
	is.Equal(l.Stats().NumLoadAhead, 1)
}

func (suite *LoaderTestSuite) TestInitializeWithZeroCapacityCachesNothing() {
	is := suite.is
	l := suite.openLoader(imgseq.Settings{CacheBudget: 10, BehindFraction: 0.25}, false)

	is.Equal(l.Stats().CacheCapacity, 0)
	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	is.True(l.GetWork() == nil)
	is.True(l.GetFrameSample(500*time.Millisecond) == nil)
}

func (suite *LoaderTestSuite) TestInitializeFromFramePathFiltersByExtension() {
	is := suite.is
	is.NoErr(afero.WriteFile(suite.fs, "/seq/notes.txt", []byte("x"), 0644))
	is.NoErr(afero.WriteFile(suite.fs, "/seq/.frame_hidden.png", []byte{}, 0644))
	is.NoErr(suite.fs.MkdirAll("/seq/nested.png", 0755))

	l := imgseq.NewLoader(nil, suite.reader, testSettings)
	is.True(len(l.Initialize("/seq/frame_0003.png", 0, false)) > 0)

	paths := l.FramePaths()
	is.Equal(len(paths), 10)
	is.Equal(paths[0], "/seq/frame_0000.png")
	is.Equal(paths[9], "/seq/frame_0009.png")
}

func (suite *LoaderTestSuite) TestInitializeFrameRatePrecedence() {
	is := suite.is

	overridden := imgseq.NewLoader(nil, suite.reader, testSettings)
	is.True(len(overridden.Initialize("/seq", 30, false)) > 0)
	is.Equal(overridden.FrameRate(), 30.0)

	suite.reader.info.FrameRate = 0
	defaulted := imgseq.NewLoader(nil, suite.reader, testSettings)
	is.True(len(defaulted.Initialize("/seq", 0, false)) > 0)
	is.Equal(defaulted.FrameRate(), 24.0)
}

func (suite *LoaderTestSuite) TestInitializeDescribesSequence() {
	is := suite.is
	l := imgseq.NewLoader(nil, suite.reader, testSettings)

	description := l.Initialize("/seq", 0, false)
	is.Equal(description, l.Description())
	is.Equal(description, "Image Sequence\n"+
		"    Path: /seq\n"+
		"    Dimension: 4 x 4\n"+
		"    Format: RGBA8\n"+
		"    Compression: png\n"+
		"    Frames: 10\n"+
		"    Frame Rate: 10.00\n"+
		"    Frame Size: 64 B\n"+
		"    Cache Budget: 256 B\n"+
		"    Cache: 4 frames, 3 ahead, 1 behind\n")
}

func (suite *LoaderTestSuite) assertFailsSoftly(l *imgseq.Loader, path string) {
	is := suite.is
	is.Equal(l.Initialize(path, 0, false), "")
	is.True(!l.IsInitialized())
	is.True(!l.RequestFrame(0, 1, false))
	is.True(l.GetWork() == nil)
	is.True(l.GetFrameSample(0) == nil)
	is.Equal(len(l.GetPendingTimeRanges()), 0)
	is.Equal(len(l.GetBusyTimeRanges()), 0)
	is.Equal(len(l.GetCompletedTimeRanges()), 0)
	is.Equal(len(suite.registrar.registered), 0)
}

func (suite *LoaderTestSuite) TestInitializeFailsSoftlyForEmptyDirectory() {
	suite.is.NoErr(suite.fs.MkdirAll("/empty", 0755))
	suite.assertFailsSoftly(imgseq.NewLoader(suite.registrar, suite.reader, testSettings), "/empty")
}

func (suite *LoaderTestSuite) TestInitializeFailsSoftlyForMissingPath() {
	suite.assertFailsSoftly(imgseq.NewLoader(suite.registrar, suite.reader, testSettings), "/missing")
}

func (suite *LoaderTestSuite) TestInitializeFailsSoftlyForUnreadableFirstFrame() {
	suite.reader.infoErr = xerror.New("corrupt header")
	suite.assertFailsSoftly(imgseq.NewLoader(suite.registrar, suite.reader, testSettings), "/seq")
}

func (suite *LoaderTestSuite) TestInitializeFailsSoftlyForZeroDimensions() {
	suite.reader.info.Dim = videoframe.Dimensions{W: 0, H: 4}
	suite.assertFailsSoftly(imgseq.NewLoader(suite.registrar, suite.reader, testSettings), "/seq")
}

func (suite *LoaderTestSuite) TestInitializeFailsSoftlyForZeroSize() {
	suite.reader.info.UncompressedSize = 0
	suite.assertFailsSoftly(imgseq.NewLoader(suite.registrar, suite.reader, testSettings), "/seq")
}

func (suite *LoaderTestSuite) TestInitializeFailsSoftlyForUnsupportedFormat() {
	suite.reader.info.Format = videoframe.FormatUnknown
	suite.assertFailsSoftly(imgseq.NewLoader(suite.registrar, suite.reader, testSettings), "/seq")
}

func (suite *LoaderTestSuite) TestRequestFrameQueuesLookAheadBeforeLookBehind() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	is.Equal(l.PendingIndices(), []int{6, 7, 8, 4})

	order := []int{}
	for work := l.GetWork(); work != nil; work = l.GetWork() {
		order = append(order, imgseq.WorkIndex(work))
	}
	is.Equal(order, []int{6, 7, 8, 4})
	is.Equal(l.QueuedIndices(), []int{4, 6, 7, 8})
	is.Equal(len(l.PendingIndices()), 0)
}

func (suite *LoaderTestSuite) TestRequestLastFrameWithoutLoopExcludesAhead() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(900*time.Millisecond, 1, false))
	is.Equal(l.PendingIndices(), []int{8})
}

func (suite *LoaderTestSuite) TestRequestLastFrameWithLoopWraps() {
	is := suite.is
	l := suite.openLoader(testSettings, true)

	is.True(l.RequestFrame(900*time.Millisecond, 1, true))
	is.Equal(l.PendingIndices(), []int{0, 1, 2, 8})
}

func (suite *LoaderTestSuite) TestRequestFramePastEndClampsOrWraps() {
	is := suite.is
	clamped := suite.openLoader(testSettings, false)
	is.True(clamped.RequestFrame(5*time.Second, 1, false))
	is.Equal(clamped.PendingIndices(), []int{8})

	wrapped := suite.openLoader(testSettings, true)
	is.True(wrapped.RequestFrame(1200*time.Millisecond, 1, true))
	is.Equal(wrapped.PendingIndices(), []int{3, 4, 5, 1})
}

func (suite *LoaderTestSuite) TestRequestFrameReversePlayback() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(500*time.Millisecond, -1, false))
	is.Equal(l.PendingIndices(), []int{4, 3, 2, 6})
}

func (suite *LoaderTestSuite) TestRequestSameFrameTwiceIsNoop() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	is.True(!l.RequestFrame(550*time.Millisecond, 1, false))
	is.Equal(l.Stats().WindowUpdates, 1)

	is.True(l.RequestFrame(600*time.Millisecond, 1, false))
	is.Equal(l.Stats().WindowUpdates, 2)
}

func (suite *LoaderTestSuite) TestDispatchedFramesAreNeverPendingAgain() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	first := l.GetWork()
	second := l.GetWork()
	is.Equal(imgseq.WorkIndex(first), 6)
	is.Equal(imgseq.WorkIndex(second), 7)

	is.True(l.RequestFrame(600*time.Millisecond, 1, false))
	is.Equal(l.QueuedIndices(), []int{7})
	is.Equal(l.PendingIndices(), []int{8, 9, 5})

	queued := map[int]bool{}
	for _, index := range l.QueuedIndices() {
		queued[index] = true
	}
	for _, index := range l.PendingIndices() {
		is.True(!queued[index])
	}
}

func (suite *LoaderTestSuite) TestCompletedFramesAreCachedAndSampled() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	is.Equal(drainSync(l), []int{6, 7, 8, 4})
	is.Equal(l.CachedIndices(), []int{4, 6, 7, 8})
	is.Equal(l.WorkPoolSize(), 1)

	sample := l.GetFrameSample(650 * time.Millisecond)
	is.True(sample != nil)
	is.Equal(sample.Index, 6)
	is.Equal(sample.Time, 600*time.Millisecond)
	is.Equal(sample.Duration, 100*time.Millisecond)
	is.Equal(sample.Frame.Dim, videoframe.Dimensions{W: 4, H: 4})

	is.True(l.GetFrameSample(500*time.Millisecond) == nil)
	is.True(l.GetFrameSample(2*time.Second) == nil)

	stats := l.Stats()
	is.Equal(stats.FramesLoaded, 4)
	is.Equal(stats.SampleHits, 1)
	is.Equal(stats.SampleMisses, 1)
}

func (suite *LoaderTestSuite) TestCachedFramesAreNotRequestedAgain() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	drainSync(l)

	is.True(l.RequestFrame(600*time.Millisecond, 1, false))
	is.Equal(l.PendingIndices(), []int{9, 5})
	is.Equal(suite.reader.readCount(), 4)
}

func (suite *LoaderTestSuite) TestStaleCompletionIsDiscarded() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(0, 1, false))
	work := l.GetWork()
	is.Equal(imgseq.WorkIndex(work), 1)

	is.True(l.RequestFrame(900*time.Millisecond, 1, false))
	is.Equal(len(l.QueuedIndices()), 0)

	work.Execute()

	is.Equal(len(l.CachedIndices()), 0)
	is.Equal(l.Stats().FramesDiscarded, 1)
	is.Equal(l.Stats().FramesLoaded, 0)
	is.Equal(l.WorkPoolSize(), 1)
}

func (suite *LoaderTestSuite) TestFailedReadLeavesFrameUncachedAndRetries() {
	is := suite.is
	suite.reader.readErr = xerror.New("truncated file")
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	drainSync(l)
	is.Equal(len(l.CachedIndices()), 0)
	is.Equal(len(l.QueuedIndices()), 0)
	is.Equal(l.Stats().FailedReads, 4)
	is.Equal(l.Stats().FramesLoaded, 0)
	is.Equal(l.Stats().FramesDiscarded, 0)

	suite.reader.readErr = nil
	is.True(l.RequestFrame(600*time.Millisecond, 1, false))
	is.Equal(l.PendingIndices(), []int{7, 8, 9, 5})
}

func (suite *LoaderTestSuite) TestUpdateRebuildsWindowAndRecordsLoop() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	l.Update(9, 1, true)
	is.Equal(l.PendingIndices(), []int{0, 1, 2, 8})
	is.True(!l.RequestFrame(900*time.Millisecond, 1, true))
	is.Equal(l.Stats().WindowUpdates, 1)

	is.Equal(drainSync(l), []int{0, 1, 2, 8})
	sample := l.GetFrameSample(1200 * time.Millisecond)
	is.True(sample != nil)
	is.Equal(sample.Index, 2)

	l.Update(9, 1, true)
	is.Equal(l.Stats().WindowUpdates, 2)
	is.Equal(len(l.PendingIndices()), 0)

	l.Update(12, 1, false)
	is.Equal(len(l.PendingIndices()), 0)
	is.True(l.GetFrameSample(1200*time.Millisecond) == nil)
}

func (suite *LoaderTestSuite) TestAbandonedWorkReturnsToPending() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	work := l.GetWork()
	work.Abandon()

	is.Equal(len(l.QueuedIndices()), 0)
	is.Equal(l.WorkPoolSize(), 1)

	is.True(l.RequestFrame(400*time.Millisecond, 1, false))
	is.Equal(l.PendingIndices(), []int{5, 6, 7, 3})
}

func (suite *LoaderTestSuite) TestWorkItemsArePooled() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	first := l.GetWork()
	first.Execute()
	second := l.GetWork()

	is.True(first == second)
	is.Equal(imgseq.WorkIndex(second), 7)
}

func (suite *LoaderTestSuite) TestCacheNeverExceedsCapacity() {
	is := suite.is
	l := suite.openLoader(testSettings, true)
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		t := time.Duration(rnd.Intn(2000)) * time.Millisecond
		rate := float64(rnd.Intn(5) - 2)
		l.RequestFrame(t, rate, true)

		for j := rnd.Intn(4); j > 0; j-- {
			if work := l.GetWork(); work != nil {
				work.Execute()
			}
		}
		is.True(l.Stats().CachedFrames <= 4)
	}
}

func (suite *LoaderTestSuite) TestTimeRanges() {
	is := suite.is
	l := suite.openLoader(testSettings, false)

	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	is.Equal(l.GetPendingTimeRanges(), []imgseq.TimeRange{
		{Start: 400 * time.Millisecond, End: 500 * time.Millisecond},
		{Start: 600 * time.Millisecond, End: 900 * time.Millisecond},
	})

	work := l.GetWork()
	is.Equal(l.GetBusyTimeRanges(), []imgseq.TimeRange{
		{Start: 600 * time.Millisecond, End: 700 * time.Millisecond},
	})

	work.Execute()
	is.Equal(len(l.GetBusyTimeRanges()), 0)
	is.Equal(l.GetCompletedTimeRanges(), []imgseq.TimeRange{
		{Start: 600 * time.Millisecond, End: 700 * time.Millisecond},
	})
}

func (suite *LoaderTestSuite) TestCloseUnregistersAndEmptiesCache() {
	is := suite.is
	l := suite.openLoader(testSettings, false)
	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	drainSync(l)

	l.Close()
	l.Close()

	is.True(!l.IsInitialized())
	is.Equal(len(suite.registrar.unregistered), 1)
	is.True(suite.registrar.unregistered[0] == suite.registrar.registered[0])
	is.True(!suite.registrar.registered[0].Alive())
	is.Equal(len(l.CachedIndices()), 0)
	is.Equal(l.WorkPoolSize(), 0)
	is.True(l.GetWork() == nil)
	is.True(!l.RequestFrame(100*time.Millisecond, 1, false))
	is.Equal(l.Initialize("/seq", 0, false), "")
}

func (suite *LoaderTestSuite) TestWorkFinishingAfterCloseIsDropped() {
	is := suite.is
	l := suite.openLoader(testSettings, false)
	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	work := l.GetWork()

	l.Close()
	work.Execute()

	is.Equal(l.Stats().FramesLoaded, 0)
	is.Equal(len(l.CachedIndices()), 0)
	is.Equal(l.WorkPoolSize(), 0)
}

// Both reads are still blocked in the reader when the loader goes away.
func (suite *LoaderTestSuite) TestCloseWithReadsInFlightOnTwoWorkers() {
	is := suite.is
	started := make(chan string, 2)
	release := make(chan struct{})
	suite.reader.onRead = func(path string) {
		started <- path
		<-release
	}

	s := prefetch.New()
	s.Initialize(2, nil)
	defer s.Shutdown()

	l := imgseq.NewLoader(s, suite.reader, testSettings)
	is.True(len(l.Initialize("/seq", 0, false)) > 0)
	is.Equal(s.NumLoaders(), 1)
	is.True(l.RequestFrame(500*time.Millisecond, 1, false))

	s.TickFetch(time.Millisecond, clock.Timecode{})
	<-started
	<-started

	l.Close()
	is.Equal(s.NumLoaders(), 0)
	close(release)

	deadline := time.Now().Add(5 * time.Second)
	for s.NumIdle() != 2 {
		if time.Now().After(deadline) {
			suite.T().Fatal("workers never returned to the pool")
		}
		time.Sleep(time.Millisecond)
	}

	is.Equal(suite.reader.readCount(), 2)
	is.Equal(l.Stats().FramesLoaded, 0)
	is.Equal(len(l.CachedIndices()), 0)
}

func (suite *LoaderTestSuite) TestScheduledReadsFillCache() {
	is := suite.is
	s := prefetch.New()
	s.Initialize(3, nil)
	defer s.Shutdown()

	l := imgseq.NewLoader(s, suite.reader, testSettings)
	is.True(len(l.Initialize("/seq", 0, false)) > 0)
	defer l.Close()

	is.True(l.RequestFrame(500*time.Millisecond, 1, false))
	s.TickFetch(time.Millisecond, clock.Timecode{})

	deadline := time.Now().Add(5 * time.Second)
	for l.Stats().FramesLoaded != 4 {
		if time.Now().After(deadline) {
			suite.T().Fatal("frames never loaded")
		}
		time.Sleep(time.Millisecond)
	}
	is.Equal(l.CachedIndices(), []int{4, 6, 7, 8})
	is.True(l.GetFrameSample(800*time.Millisecond) != nil)
}

func TestLoaderTestSuite(t *testing.T) {
	suite.Run(t, &LoaderTestSuite{})
}
