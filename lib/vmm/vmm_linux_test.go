package vmm

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// mapped reports whether every page of the range is mapped.  mincore
// fails with ENOMEM if any page in the range is not.
func mapped(addr, size, page uintptr) bool {
	vec := make([]byte, (size+page-1)/page)
	_, _, errno := unix.Syscall(unix.SYS_MINCORE, addr, size, uintptr(unsafe.Pointer(&vec[0])))
	return errno == 0
}

// mapName returns the name /proc/self/maps shows for the mapping
// containing addr, or "" if it has none.
func mapName(t *testing.T, addr uintptr) string {
	f, err := os.Open("/proc/self/maps")
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var start, end uintptr
		line := scanner.Text()
		_, err := fmt.Sscanf(line, "%x-%x", &start, &end)
		require.NoError(t, err, line)
		if addr < start || addr >= end {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			return ""
		}
		return strings.Join(fields[5:], " ")
	}
	require.NoError(t, scanner.Err())
	t.Fatalf("%#x not in /proc/self/maps", addr)
	return ""
}

// skipIfCantName skips the test unless the kernel can name anonymous
// mappings.
func skipIfCantName(t *testing.T) {
	page := uintptr(os.Getpagesize())
	p, err := unix.MmapPtr(-1, 0, nil, page, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	defer func() { require.NoError(t, unix.MunmapPtr(p, page)) }()
	name, err := unix.BytePtrFromString("vmm_check")
	require.NoError(t, err)
	err = unix.Prctl(unix.PR_SET_VMA, unix.PR_SET_VMA_ANON_NAME, uintptr(p), page, uintptr(unsafe.Pointer(name)))
	runtime.KeepAlive(name)
	if err != nil {
		t.Skipf("kernel can't name mappings: %v", err)
	}
}

func TestParseOvercommit(t *testing.T) {
	for _, test := range []struct {
		in   string
		want bool
	}{
		{"0\n", true},
		{"1\n", true},
		{"2\n", false},
		{"", false},
		{"potato", false},
	} {
		assert.Equal(t, test.want, parseOvercommit([]byte(test.in)), "%q", test.in)
	}
}

func TestOsOvercommits(t *testing.T) {
	oldPath := overcommitPath
	defer func() { overcommitPath = oldPath }()
	dir := t.TempDir()

	overcommitPath = filepath.Join(dir, "overcommit_memory")
	require.NoError(t, os.WriteFile(overcommitPath, []byte("2\n"), 0600))
	assert.False(t, osOvercommits())
	assert.Equal(t, Policy{Flags: MapFlags(unix.MAP_PRIVATE | unix.MAP_ANON)}, Bootstrap())

	require.NoError(t, os.WriteFile(overcommitPath, []byte("0\n"), 0600))
	assert.True(t, osOvercommits())
	assert.Equal(t, Policy{Overcommit: true, Flags: MapFlags(unix.MAP_PRIVATE | unix.MAP_ANON | unix.MAP_NORESERVE)}, Bootstrap())

	overcommitPath = filepath.Join(dir, "missing")
	assert.False(t, osOvercommits())
}

func TestLiveTrimUnmapsSlack(t *testing.T) {
	m := New(Bootstrap())
	page := m.PageSize()

	base, committed, err := m.Reserve(0, 3*page, true)
	require.NoError(t, err)
	require.True(t, mapped(base, 3*page, page))

	addr, _, err := m.Trim(base, 3*page, page, page, committed)
	require.NoError(t, err)
	assert.Equal(t, base+page, addr)

	assert.False(t, mapped(base, page, page), "lead still mapped")
	assert.True(t, mapped(base+page, page, page), "middle not mapped")
	assert.False(t, mapped(base+2*page, page, page), "trail still mapped")

	require.NoError(t, m.Release(addr, page))
	assert.False(t, mapped(addr, page, page))
}

func TestLivePurgeZeroes(t *testing.T) {
	m := New(Bootstrap())
	size := 2 * m.PageSize()

	addr, _, err := m.Reserve(0, size, true)
	require.NoError(t, err)
	mem := bytesAt(addr, size)
	for i := range mem {
		mem[i] = 0x5A
	}
	require.False(t, m.Purge(addr, size), "MADV_DONTNEED guarantees zero pages")
	for i := range mem {
		require.Zero(t, mem[i], "byte %d", i)
	}
	require.NoError(t, m.Release(addr, size))
}

func TestLivePurgeLazy(t *testing.T) {
	p := Bootstrap()
	p.LazyPurge = true
	m := New(p)
	size := m.PageSize()

	addr, _, err := m.Reserve(0, size, true)
	require.NoError(t, err)
	bytesAt(addr, size)[0] = 1
	// MADV_FREE makes no zero promise, and kernels before 4.5 reject
	// it which must also report unzeroed
	assert.True(t, m.Purge(addr, size))
	require.NoError(t, m.Release(addr, size))
}

func TestLiveNameMapping(t *testing.T) {
	skipIfCantName(t)
	p := Bootstrap()
	p.Name = "vmm_test"
	m := New(p)
	size := 2 * m.PageSize()

	addr, _, err := m.Reserve(0, size, true)
	require.NoError(t, err)
	assert.Equal(t, "[anon:vmm_test]", mapName(t, addr))
	assert.Equal(t, "[anon:vmm_test]", mapName(t, addr+size-1))

	// MAP_FIXED replaces the mapping so the name must be set again
	p.Overcommit = false
	fixed := New(p)
	require.NoError(t, fixed.Decommit(addr, size))
	assert.Equal(t, "[anon:vmm_test]", mapName(t, addr))
	require.NoError(t, fixed.Commit(addr, size))
	assert.Equal(t, "[anon:vmm_test]", mapName(t, addr))

	require.NoError(t, m.Release(addr, size))
}

func TestLiveNameMappingUnnamed(t *testing.T) {
	skipIfCantName(t)
	m := New(Bootstrap())
	size := m.PageSize()

	addr, _, err := m.Reserve(0, size, true)
	require.NoError(t, err)
	assert.NotContains(t, mapName(t, addr), "[anon:")
	require.NoError(t, m.Release(addr, size))
}

func TestNameMappingBadName(t *testing.T) {
	p := Bootstrap()
	p.Name = "bad\x00name"
	b := newBackend(p).(*posixBackend)
	assert.Nil(t, b.name)

	p.Name = "good"
	b = newBackend(p).(*posixBackend)
	require.NotNil(t, b.name)
	assert.Equal(t, "good", unix.BytePtrToString(b.name))
}
