// Package selftest provides the selftest command.
package selftest

import (
	"context"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rclone/vmm/cmd"
	"github.com/rclone/vmm/fs"
	"github.com/rclone/vmm/fs/config/flags"
	"github.com/rclone/vmm/fs/fserrors"
	"github.com/rclone/vmm/lib/pool"
	"github.com/rclone/vmm/lib/vmm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Options control the self test
type Options struct {
	Size    fs.SizeSuffix // size of each test reservation
	Workers int           // number of goroutines running checks
	Rounds  int           // number of times each worker runs every check
}

// DefaultOpt is the default values used for Opt
var DefaultOpt = Options{
	Size:    fs.SizeSuffix(1 << 20),
	Workers: runtime.NumCPU(),
	Rounds:  4,
}

// Opt is the options set by the command line
var Opt = DefaultOpt

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	flags.FVarP(cmdFlags, &Opt.Size, "size", "", "Size of each test reservation")
	flags.IntVarP(cmdFlags, &Opt.Workers, "workers", "", Opt.Workers, "Number of checks to run in parallel")
	flags.IntVarP(cmdFlags, &Opt.Rounds, "rounds", "", Opt.Rounds, "Number of times each worker runs every check")
}

var commandDefinition = &cobra.Command{
	Use:   "selftest",
	Short: `Check the OS behaves the way the virtual memory layer expects.`,
	Long: `Runs every virtual memory operation against the live OS from
several goroutines at once, each working on its own reservations.

  * reserve and release, then reserve the same size again
  * trim a reservation down to its middle
  * reserve on an alignment boundary
  * commit and decommit in place
  * purge and check the pages read back as zero where promised
  * ask for an address which is already taken and check it is refused

Finally it runs a buffer pool over the same manager and logs its
metrics.

The exit code is 4 if a check found the OS misbehaving, 3 if the OS
refused to hand out address space and 5 if it refused to take a
mapping back.
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 0, command, args)
		cmd.Run(command, func() error {
			ctx := context.Background()
			m := cmd.NewManager(ctx)
			if err := runChecks(ctx, m, Opt); err != nil {
				return fserrors.Escalate(ctx, err)
			}
			return runPool(ctx, cmd.NewPool(ctx, m), Opt.Workers)
		})
	},
}

// check is a single self test run on its own reservations
type check struct {
	name string
	fn   func(m *vmm.Manager, size uintptr) error
}

var checks = []check{
	{"round trip", checkRoundTrip},
	{"trim", checkTrim},
	{"aligned", checkAligned},
	{"commit", checkCommit},
	{"purge", checkPurge},
	{"placement", checkPlacement},
}

// failures counts the checks which failed so every worker can carry
// on and the user sees how widespread a problem is.
type failures struct {
	mu      sync.Mutex
	byCheck map[string]int
	count   int
	lastErr error
}

// add records err against the named check.  err may be nil.
//
// Thread safe.
func (f *failures) add(name string, err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byCheck == nil {
		f.byCheck = make(map[string]int)
	}
	f.byCheck[name]++
	f.count++
	f.lastErr = err
}

// err returns a summary of the failures so far or nil
//
// Thread safe.
func (f *failures) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.count {
	case 0:
		return nil
	case 1:
		return errors.WithMessage(f.lastErr, "self test failed")
	}
	for name, n := range f.byCheck {
		fs.Errorf(nil, "Check %q failed %d times", name, n)
	}
	return errors.WithMessagef(f.lastErr, "self test failed: %d errors: last error", f.count)
}

// runChecks runs every check opt.Rounds times on each of opt.Workers
// goroutines.  A failing check doesn't stop the others.
func runChecks(ctx context.Context, m *vmm.Manager, opt Options) error {
	page := m.PageSize()
	if opt.Size <= 0 || opt.Workers <= 0 || opt.Rounds <= 0 {
		return errors.Errorf("bad self test options: size %v, workers %d, rounds %d", opt.Size, opt.Workers, opt.Rounds)
	}
	size := (uintptr(opt.Size) + page - 1) &^ (page - 1)
	run := fs.LogValue("run", uuid.New().String())
	fs.Infof(m, "Running %d checks of %v with %d workers for %d rounds (run %v)", len(checks), fs.SizeSuffix(size), opt.Workers, opt.Rounds, run)
	start := time.Now()
	var failed failures
	g, gCtx := errgroup.WithContext(ctx)
	for w := 0; w < opt.Workers; w++ {
		w := w
		g.Go(func() error {
			for round := 0; round < opt.Rounds; round++ {
				for _, c := range checks {
					if err := gCtx.Err(); err != nil {
						return err
					}
					if err := c.fn(m, size); err != nil {
						fs.Debugf(m, "Worker %d round %d: %s failed: %v", w, round, c.name, err)
						failed.add(c.name, errors.Wrapf(err, "worker %d round %d: %s", w, round, c.name))
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := failed.err(); err != nil {
		return err
	}
	fs.Logf(m, "All checks passed in %v (run %v)", time.Since(start), run)
	return nil
}

// view returns the memory at addr as a byte slice.  addr is always a
// vmm mapping which lives outside the Go heap, so converting it back
// to a pointer is safe.
func view(addr, size uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

// touch writes to the first and last byte of every page
func touch(m *vmm.Manager, addr, size uintptr) {
	mem := view(addr, size)
	page := m.PageSize()
	for off := uintptr(0); off < size; off += page {
		mem[off] = 0xA5
		mem[off+page-1] = 0x5A
	}
}

func checkFailed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrorCheckFailed, format, args...)
}

// ErrorCheckFailed is returned when the OS didn't do what was asked
var ErrorCheckFailed = cmd.ErrorCheckFailed

func checkRoundTrip(m *vmm.Manager, size uintptr) error {
	for i := 0; i < 2; i++ {
		addr, committed, err := m.Reserve(0, size, true)
		if err != nil {
			return err
		}
		if !committed {
			_ = m.Release(addr, size)
			return checkFailed("reservation at %#x not committed", addr)
		}
		touch(m, addr, size)
		if err := m.Release(addr, size); err != nil {
			return err
		}
	}
	return nil
}

func checkTrim(m *vmm.Manager, size uintptr) error {
	page := m.PageSize()
	allocSize := size + 2*page
	addr, committed, err := m.Reserve(0, allocSize, true)
	if err != nil {
		return err
	}
	ret, committed, err := m.Trim(addr, allocSize, page, size, committed)
	if errors.Is(err, vmm.ErrPlacement) {
		// another goroutine took the address while it was unmapped
		fs.Debugf(m, "Trim lost the race for %#x", addr+page)
		return nil
	}
	if err != nil {
		if ret != 0 {
			_ = m.Release(ret, size)
		}
		return err
	}
	if ret != addr+page {
		_ = m.Release(ret, size)
		return checkFailed("trimmed to %#x, expected %#x", ret, addr+page)
	}
	if committed {
		touch(m, ret, size)
	}
	return m.Release(ret, size)
}

// alignmentFor returns the smallest power of two which is at least
// size and 64 KiB
func alignmentFor(size uintptr) uintptr {
	alignment := uintptr(64 << 10)
	for alignment < size {
		alignment <<= 1
	}
	return alignment
}

func checkAligned(m *vmm.Manager, size uintptr) error {
	alignment := alignmentFor(size)
	if alignment < m.PageSize() {
		alignment = m.PageSize()
	}
	addr, committed, err := m.ReserveAligned(size, alignment, true)
	if err != nil {
		return err
	}
	if addr%alignment != 0 {
		_ = m.Release(addr, size)
		return checkFailed("reservation at %#x not aligned to %#x", addr, alignment)
	}
	if committed {
		touch(m, addr, size)
	}
	return m.Release(addr, size)
}

func checkCommit(m *vmm.Manager, size uintptr) error {
	addr, committed, err := m.Reserve(0, size, false)
	if err != nil {
		return err
	}
	if m.Policy().Overcommit != committed {
		_ = m.Release(addr, size)
		return checkFailed("reservation committed=%v with overcommit=%v", committed, m.Policy().Overcommit)
	}
	if err := m.Commit(addr, size); err != nil {
		_ = m.Release(addr, size)
		return err
	}
	touch(m, addr, size)
	if err := m.Decommit(addr, size); err != nil {
		_ = m.Release(addr, size)
		return err
	}
	return m.Release(addr, size)
}

func checkPurge(m *vmm.Manager, size uintptr) error {
	addr, _, err := m.Reserve(0, size, true)
	if err != nil {
		return err
	}
	mem := view(addr, size)
	for i := range mem {
		mem[i] = 0xFF
	}
	if unzeroed := m.Purge(addr, size); !unzeroed {
		for i := range mem {
			if mem[i] != 0 {
				_ = m.Release(addr, size)
				return checkFailed("byte %d at %#x not zero after purge", i, addr)
			}
		}
	}
	// still usable after a purge
	touch(m, addr, size)
	return m.Release(addr, size)
}

func checkPlacement(m *vmm.Manager, size uintptr) error {
	addr, _, err := m.Reserve(0, size, true)
	if err != nil {
		return err
	}
	stray, _, err := m.Reserve(addr, size, true)
	switch {
	case err == nil:
		_ = m.Release(stray, size)
		_ = m.Release(addr, size)
		return checkFailed("reservation at %#x replaced an existing mapping", addr)
	case errors.Is(err, vmm.ErrPlacement), errors.Is(err, vmm.ErrReserve):
		// refused, or placed elsewhere and given back
	default:
		_ = m.Release(addr, size)
		return err
	}
	// the original mapping is untouched
	touch(m, addr, size)
	return m.Release(addr, size)
}

// runPool exercises a buffer pool and logs its metrics
func runPool(ctx context.Context, bp *pool.Pool, n int) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(pool.NewMetrics("vmm", bp)); err != nil {
		return errors.Wrap(err, "failed to register pool metrics")
	}
	bufs := make([][]byte, n)
	for i := range bufs {
		bufs[i] = bp.Get()
		bufs[i][0] = byte(i)
	}
	for _, buf := range bufs {
		bp.Put(buf)
	}
	unzeroed := bp.Purge()
	fs.Debugf(nil, "Purged pool, %d buffers may be unzeroed", unzeroed)

	families, err := registry.Gather()
	if err != nil {
		return errors.Wrap(err, "failed to gather pool metrics")
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			fs.Infof(nil, "%s = %v", family.GetName(), metric.GetGauge().GetValue())
		}
	}

	bp.Flush()
	if bp.InUse() != 0 || bp.Alloced() != 0 {
		return checkFailed("pool leaked buffers: %d in use, %d allocated", bp.InUse(), bp.Alloced())
	}
	fs.Logf(nil, "Pool of %v buffers passed", fs.SizeSuffix(bp.BufferSize()))
	return ctx.Err()
}
