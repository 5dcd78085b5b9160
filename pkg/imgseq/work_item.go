package imgseq

import (
	"github.com/tauraamui/dragonreel/pkg/log"
	"github.com/tauraamui/dragonreel/pkg/video/imgreader"
	"github.com/tauraamui/dragonreel/pkg/video/videoframe"
	"github.com/tauraamui/dragonreel/pkg/weakref"
)

// workItem reads one frame for its loader. Items are pooled by the loader
// and only go back into the pool once their result has been delivered, so
// an item is never bound to two frames at once.
type workItem struct {
	owner  *weakref.Ref[*Loader]
	reader imgreader.Reader
	index  int
	path   string
}

func newWorkItem(owner *weakref.Ref[*Loader], reader imgreader.Reader) *workItem {
	return &workItem{owner: owner, reader: reader}
}

func (w *workItem) Initialize(index int, path string) {
	w.index = index
	w.path = path
}

func (w *workItem) Execute() {
	frame, err := w.reader.ReadFrame(w.path)
	if err != nil {
		log.Warn("Unable to read frame [%d]: %s", w.index, err.Error())
		w.finalize(nil, true)
		return
	}
	w.finalize(frame, false)
}

func (w *workItem) Abandon() {
	w.finalize(nil, false)
}

// finalize delivers the result to the owning loader. When the loader has
// been closed there is nobody left to pool the item, so the frame and the
// item are simply dropped.
func (w *workItem) finalize(frame *videoframe.Frame, failed bool) {
	loader, ok := w.owner.Get()
	if !ok {
		log.Debug("Dropping frame [%d] for closed image sequence", w.index)
		return
	}
	loader.notifyWorkComplete(w, w.index, frame, failed)
}
