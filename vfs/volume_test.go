package vfs

import (
	"testing"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/stretchr/testify/assert"
)

func withMountTable(t *testing.T, parts []disk.PartitionStat) *volumeTable {
	t.Helper()
	orig := partitionsFn
	partitionsFn = func() ([]disk.PartitionStat, error) { return parts, nil }
	t.Cleanup(func() { partitionsFn = orig })
	return newVolumeTable()
}

func TestVolumeTable_NetworkMountsAvoidChanges(t *testing.T) {
	vt := withMountTable(t, []disk.PartitionStat{
		{Mountpoint: "/", Fstype: "ext4"},
		{Mountpoint: "/mnt/share", Fstype: "nfs4"},
		{Mountpoint: "/mnt/win", Fstype: "cifs"},
	})

	assert.False(t, vt.shouldAvoidLiveChanges("/home/user"))
	assert.True(t, vt.shouldAvoidLiveChanges("/mnt/share"))
	assert.True(t, vt.shouldAvoidLiveChanges("/mnt/share/deep/path"))
	assert.True(t, vt.shouldAvoidLiveChanges("/mnt/win/docs"))
	assert.False(t, vt.shouldAvoidLiveChanges("/mnt"))
}

func TestVolumeTable_LongestPrefixWins(t *testing.T) {
	vt := withMountTable(t, []disk.PartitionStat{
		{Mountpoint: "/", Fstype: "nfs"},
		{Mountpoint: "/fast", Fstype: "ext4"},
	})

	assert.True(t, vt.shouldAvoidLiveChanges("/slow/file"))
	assert.False(t, vt.shouldAvoidLiveChanges("/fast/file"),
		"local mount under a network root stays live")
}

func TestVolumeTable_NoSiblingPrefixConfusion(t *testing.T) {
	vt := withMountTable(t, []disk.PartitionStat{
		{Mountpoint: "/mnt/net", Fstype: "sshfs"},
	})

	assert.True(t, vt.shouldAvoidLiveChanges("/mnt/net/x"))
	assert.False(t, vt.shouldAvoidLiveChanges("/mnt/network-local"),
		"prefix match is per path component")
}
