package hostsim

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/ryogrid/vchordlite/page"
	bolt "go.etcd.io/bbolt"
)

var pagesBucket = []byte("vchordlite_pages")

// boltPage is a HostPage view over one value in a bbolt bucket; reads pull
// the whole page into memory once, writes go back on Unpin.
type boltPage struct {
	id       int32
	pinCount int32
	data     [page.Size]byte
}

func (p *boltPage) DataAsSlice() []byte { return p.data[:] }
func (p *boltPage) ID() int32           { return p.id }
func (p *boltPage) PinCount() int32     { return atomic.LoadInt32(&p.pinCount) }
func (p *boltPage) DecPinCount()        { atomic.AddInt32(&p.pinCount, -1) }

// Bolt is a HostBufferManager backed by a single go.etcd.io/bbolt file,
// so the index built against it survives a process restart. This plays
// the role of a toy "host database" for vchordlite's own integration
// tests and the CLI demo, standing in for a real host buffer manager.
type Bolt struct {
	db      *bolt.DB
	mu      sync.Mutex
	nextID  int32
	pinned  map[int32]*boltPage // pages with an outstanding Fetch, awaiting Unpin
}

func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	b := &Bolt{db: db, pinned: make(map[int32]*boltPage)}
	err = db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(pagesBucket)
		if err != nil {
			return err
		}
		c := bkt.Cursor()
		if k, _ := c.Last(); k != nil {
			b.nextID = int32(binary.BigEndian.Uint32(k))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bolt) Close() error { return b.db.Close() }

func keyFor(id int32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(id))
	return k
}

func (b *Bolt) Fetch(id int32) HostPage {
	p := &boltPage{id: id, pinCount: 1}
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(pagesBucket).Get(keyFor(id))
		if v == nil {
			panic("hostsim: bolt fetch of unknown page id")
		}
		copy(p.data[:], v)
		return nil
	})
	if err != nil {
		panic(err)
	}
	b.mu.Lock()
	b.pinned[id] = p
	b.mu.Unlock()
	return p
}

// Unpin persists whatever the caller wrote into the page instance handed
// back by the matching Fetch (our own bufmgr always pairs one Fetch with
// one Unpin under an exclusive latch, so at most one instance per id is
// ever outstanding).
func (b *Bolt) Unpin(id int32, isDirty bool) error {
	b.mu.Lock()
	p := b.pinned[id]
	delete(b.pinned, id)
	b.mu.Unlock()
	if !isDirty || p == nil {
		return nil
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pagesBucket).Put(keyFor(id), p.data[:])
	})
}

func (b *Bolt) New() HostPage {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.mu.Unlock()
	p := &boltPage{id: id, pinCount: 1}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pagesBucket).Put(keyFor(id), p.data[:])
	})
	if err != nil {
		panic(err)
	}
	b.mu.Lock()
	b.pinned[id] = p
	b.mu.Unlock()
	return p
}

func (b *Bolt) Deallocate(id int32, _ bool) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pagesBucket).Delete(keyFor(id))
	})
}
