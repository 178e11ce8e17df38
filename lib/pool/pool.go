// Package pool implements a memory pool similar in concept to
// sync.Pool but with more determinism.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rclone/vmm/fs"
	"github.com/rclone/vmm/fs/fserrors"
	"github.com/rclone/vmm/lib/mmap"
)

// Allocator is the source of the buffers a Pool caches
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(mem []byte) error
	Purge(mem []byte) (unzeroed bool)
}

type mmapAllocator struct{}

func (mmapAllocator) Alloc(size int) ([]byte, error)   { return mmap.Alloc(size) }
func (mmapAllocator) Free(mem []byte) error            { return mmap.Free(mem) }
func (mmapAllocator) Purge(mem []byte) (unzeroed bool) { return mmap.Purge(mem) }

type heapAllocator struct{}

func (heapAllocator) Alloc(size int) ([]byte, error) { return make([]byte, size), nil }
func (heapAllocator) Free([]byte) error              { return nil }
func (heapAllocator) Purge([]byte) (unzeroed bool)   { return true }

// Pool of internal buffers
//
// We hold buffers in cache. Every time we Get or Put we update
// minFill which is the minimum len(cache) seen.
//
// Every flushTime we remove minFill buffers from the cache as they
// were not used in the previous flushTime interval.
type Pool struct {
	mu           sync.Mutex
	cache        [][]byte
	minFill      int // the minimum fill of the cache
	bufferSize   int
	poolSize     int
	timer        *time.Timer
	inUse        int
	alloced      int
	flushTime    time.Duration
	flushPending bool
	alloc        func(int) ([]byte, error)
	free         func([]byte) error
	purge        func([]byte) bool
}

// New makes a buffer pool
//
// flushTime is the interval the buffer pools is flushed
// bufferSize is the size of the allocations
// poolSize is the maximum number of free buffers in the pool
// useMmap should be set to use mmap allocations
func New(flushTime time.Duration, bufferSize, poolSize int, useMmap bool) *Pool {
	if useMmap {
		return NewWithAllocator(flushTime, bufferSize, poolSize, mmapAllocator{})
	}
	return NewWithAllocator(flushTime, bufferSize, poolSize, heapAllocator{})
}

// NewWithAllocator makes a buffer pool which gets its buffers from a.
//
// Use this with an mmap.Allocator to control the vmm.Manager the
// buffers are mapped with.
func NewWithAllocator(flushTime time.Duration, bufferSize, poolSize int, a Allocator) *Pool {
	bp := &Pool{
		cache:      make([][]byte, 0, poolSize),
		poolSize:   poolSize,
		flushTime:  flushTime,
		bufferSize: bufferSize,
		alloc:      a.Alloc,
		free:       a.Free,
		purge:      a.Purge,
	}
	bp.timer = time.AfterFunc(flushTime, bp.flushAged)
	return bp
}

// BufferSize returns the size of the buffers handed out by Get
func (bp *Pool) BufferSize() int {
	return bp.bufferSize
}

// get gets the last buffer in bp.cache
//
// Call with mu held
func (bp *Pool) get() []byte {
	n := len(bp.cache) - 1
	buf := bp.cache[n]
	bp.cache[n] = nil // clear buffer pointer from bp.cache
	bp.cache = bp.cache[:n]
	return buf
}

// put puts the buffer on the end of bp.cache
//
// Call with mu held
func (bp *Pool) put(buf []byte) {
	bp.cache = append(bp.cache, buf)
}

// flush n entries from the entire buffer pool
// Call with mu held
func (bp *Pool) flush(n int) {
	for i := 0; i < n; i++ {
		bp.freeBuffer(bp.get())
	}
	bp.minFill = len(bp.cache)
}

// Flush the entire buffer pool
func (bp *Pool) Flush() {
	bp.mu.Lock()
	bp.flush(len(bp.cache))
	bp.mu.Unlock()
}

// Remove bp.minFill buffers
func (bp *Pool) flushAged() {
	bp.mu.Lock()
	bp.flushPending = false
	bp.flush(bp.minFill)
	// If there are still items in the cache, schedule another flush
	if len(bp.cache) != 0 {
		bp.kickFlusher()
	}
	bp.mu.Unlock()
}

// InUse returns the number of buffers in use which haven't been
// returned to the pool
func (bp *Pool) InUse() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.inUse
}

// InPool returns the number of buffers in the pool
func (bp *Pool) InPool() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.cache)
}

// Alloced returns the number of buffers allocated and not yet freed
func (bp *Pool) Alloced() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.alloced
}

// starts or resets the buffer flusher timer - call with mu held
func (bp *Pool) kickFlusher() {
	if bp.flushPending {
		return
	}
	bp.flushPending = true
	bp.timer.Reset(bp.flushTime)
}

// Make sure minFill is correct - call with mu held
func (bp *Pool) updateMinFill() {
	if len(bp.cache) < bp.minFill {
		bp.minFill = len(bp.cache)
	}
}

// Get a buffer from the pool or allocate one
func (bp *Pool) Get() []byte {
	bp.mu.Lock()
	var buf []byte
	waitTime := time.Millisecond
	for {
		if len(bp.cache) > 0 {
			buf = bp.get()
			break
		} else {
			var err error
			buf, err = bp.alloc(bp.bufferSize)
			if err == nil {
				bp.alloced++
				break
			}
			fs.Logf(nil, "Failed to get memory for buffer, waiting for %v: %v", waitTime, err)
			bp.mu.Unlock()
			time.Sleep(waitTime)
			bp.mu.Lock()
			waitTime *= 2
		}
	}
	bp.inUse++
	bp.updateMinFill()
	bp.mu.Unlock()
	return buf
}

// freeBuffer returns mem to the os if required - call with lock held
func (bp *Pool) freeBuffer(mem []byte) {
	err := bp.free(mem)
	if err != nil {
		_ = fserrors.Escalate(context.Background(), fmt.Errorf("failed to free memory: %w", err))
	}
	bp.alloced--
}

// Purge hands the physical memory behind every cached buffer back to
// the OS without unmapping them.  The buffers stay in the pool and are
// faulted back in when next used.
//
// It returns the number of buffers which may still hold stale data.
func (bp *Pool) Purge() (unzeroed int) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, buf := range bp.cache {
		if bp.purge(buf) {
			unzeroed++
		}
	}
	fs.Debugf(nil, "Purged %d pooled buffers, %d may be unzeroed", len(bp.cache), unzeroed)
	return unzeroed
}

// Put returns the buffer to the buffer cache or frees it
//
// Note that if you try to return a buffer which is too small to Put it
// will panic.  The capacity may exceed the buffer size as mmap
// allocations are rounded up to whole pages.
func (bp *Pool) Put(buf []byte) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if cap(buf) < bp.bufferSize {
		panic(fmt.Sprintf("Returning buffer sized %d but expecting %d", cap(buf), bp.bufferSize))
	}
	buf = buf[:bp.bufferSize]
	if len(bp.cache) < bp.poolSize {
		bp.put(buf)
	} else {
		bp.freeBuffer(buf)
	}
	bp.inUse--
	bp.updateMinFill()
	bp.kickFlusher()
}
