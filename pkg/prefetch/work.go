// Package prefetch runs frame reads for every open sequence on one shared
// pool of workers. Sequences register a weak reference to themselves as a
// Source; the Scheduler hands their work out round-robin so a busy
// sequence cannot starve the others.
package prefetch

import "github.com/tauraamui/dragonreel/pkg/weakref"

// Work is a unit of work produced by a Source. Exactly one of Execute or
// Abandon is called for every item handed out.
type Work interface {
	Execute()
	Abandon()
}

// Source produces work on demand. GetWork returns nil when it has nothing
// left to do.
type Source interface {
	GetWork() Work
}

type SourceRef = weakref.Ref[Source]
