// Package hostsim stands in for the host relational database's buffer
// manager: a part of the system whose contract is relied on, but whose
// implementation lives outside this module. It splits the collaborator
// contract into a page-level interface (HostPage) and a manager-level
// interface (HostBufferManager).
//
// Three implementations are provided: Memory (an in-process map whose
// dirty pages are also copied into a dsnet/golib/memfile image, readable
// through Snapshot; Memory itself does not implement io.ReaderAt or
// io.WriterAt), Bolt (a persistent variant backed by
// go.etcd.io/bbolt, used by integration tests and the CLI demo harness
// that want the index to survive a process restart), and DirectIO (an
// O_DIRECT-backed variant for exercising unbuffered disk I/O).
package hostsim

// HostPage is one page as the host's buffer manager hands it to us:
// already pinned, with a stable numeric identity for the lifetime of the
// pin.
type HostPage interface {
	// DataAsSlice returns the raw page bytes (page.Size long).
	DataAsSlice() []byte
	// ID is the host's identifier for this page.
	ID() int32
	// PinCount is the current pin count (>=1 while held by a caller).
	PinCount() int32
	// DecPinCount drops one pin, mirroring the host's own unpin bookkeeping.
	DecPinCount()
}

// HostBufferManager is the contract vchordlite's own page store (package
// bufmgr) is built against. The host guarantees:
//   - Fetch pins the page (shared, in the sense that many callers may
//     fetch the same id concurrently; exclusivity is vchordlite's own
//     latch.RW, layered on top).
//   - New allocates a fresh page id with one pin outstanding.
//   - Unpin releases one pin and, if isDirty, marks the page for the
//     host's own generic WAL + flush machinery.
//   - Deallocate tells the host the page id will never be referenced by
//     vchordlite again (it may recycle the slot once safe to do so).
type HostBufferManager interface {
	Fetch(id int32) HostPage
	Unpin(id int32, isDirty bool) error
	New() HostPage
	Deallocate(id int32, noWait bool) error
}
