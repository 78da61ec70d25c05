// Package tinfo tracks per-thread state the page-fault handler needs
// to know about: whether the faulting thread has been marked for
// death. The teacher's version finds "the current thread" through a
// custom Go runtime fork (runtime.Gptr/Setgptr); an ordinary hosted Go
// program has no such hook, so here the caller threads defs.Tid_t
// through explicitly, the same way vm's fault entry point already
// takes a tid argument.
package tinfo

import "sync"

import "defs"

// Tnote_t stores per-thread state relevant to the pager: a faulting
// thread that is being killed still completes its current swap-in to
// a consistent state, then exits in the destroyer (§5).
type Tnote_t struct {
	sync.Mutex
	Alive    bool
	Killed   bool
	Isdoomed bool
}

// Doomed reports whether the thread is marked as doomed.
func (t *Tnote_t) Doomed() bool {
	t.Lock()
	defer t.Unlock()
	return t.Isdoomed
}

// Kill marks the thread for death. The fault handler consults this only
// for a diagnostic at the start of a fault; the fault, including any
// swap-in, still runs to completion.
func (t *Tnote_t) Kill() {
	t.Lock()
	t.Killed = true
	t.Isdoomed = true
	t.Unlock()
}

// Threadinfo_t tracks all live thread notes by tid.
type Threadinfo_t struct {
	sync.Mutex
	Notes map[defs.Tid_t]*Tnote_t
}

// Init initializes the thread info map.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Tid_t]*Tnote_t)
}

// Spawn registers a new thread note for tid.
func (t *Threadinfo_t) Spawn(tid defs.Tid_t) *Tnote_t {
	t.Lock()
	defer t.Unlock()
	n := &Tnote_t{Alive: true}
	t.Notes[tid] = n
	return n
}

// Get returns the note for tid, or nil if untracked.
func (t *Threadinfo_t) Get(tid defs.Tid_t) *Tnote_t {
	t.Lock()
	defer t.Unlock()
	return t.Notes[tid]
}

// Reap removes tid's note once the thread has exited.
func (t *Threadinfo_t) Reap(tid defs.Tid_t) {
	t.Lock()
	defer t.Unlock()
	delete(t.Notes, tid)
}
