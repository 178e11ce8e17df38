package info

import (
	"bytes"
	"testing"

	"github.com/rclone/vmm/lib/vmm"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	m := vmm.New(vmm.Policy{Overcommit: true, Flags: 0x22, Name: "vmm"})
	var out bytes.Buffer
	require.NoError(t, report(&out, m, &mem.VirtualMemoryStat{
		Total:       8 << 30,
		Available:   2 << 30,
		CommitLimit: 6 << 30,
		CommittedAS: 3 << 30,
	}))
	got := out.String()
	assert.Contains(t, got, "backend:        "+m.String()+"\n")
	assert.Contains(t, got, "overcommit:     true\n")
	assert.Contains(t, got, "map flags:      0x22\n")
	assert.Contains(t, got, "lazy purge:     false\n")
	assert.Contains(t, got, "map name:       vmm\n")
	assert.Contains(t, got, "memory total:   8 GiB\n")
	assert.Contains(t, got, "memory free:    2 GiB\n")
	assert.Contains(t, got, "commit limit:   6 GiB\n")
	assert.Contains(t, got, "committed:      3 GiB\n")
}

func TestReportWithoutMemory(t *testing.T) {
	m := vmm.New(vmm.Policy{})
	var out bytes.Buffer
	require.NoError(t, report(&out, m, nil))
	assert.NotContains(t, out.String(), "memory")

	out.Reset()
	require.NoError(t, report(&out, m, &mem.VirtualMemoryStat{Total: 1 << 30, Available: 1 << 29}))
	assert.Contains(t, out.String(), "memory free:    512 MiB\n")
	assert.NotContains(t, out.String(), "commit limit")
}
