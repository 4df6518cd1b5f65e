package fs

import (
	"golang.org/x/sys/unix"
)

// fuseSuperMagic is the statfs f_type reported for FUSE mounts.
const fuseSuperMagic = 0x65735546

// mounted reports whether mountPoint is being served by a FUSE
// filesystem yet. Plain stat succeeds on the empty mount point directory
// long before the mount lands, so the filesystem type is checked instead.
func mounted(mountPoint string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(mountPoint, &st); err != nil {
		return false
	}
	return st.Type == fuseSuperMagic
}
