//go:build !linux

package fs

import (
	"os"
)

// mounted reports whether the mount point is responding. Without a
// portable way to read the filesystem type, a stat that sees a directory
// is the best signal available.
func mounted(mountPoint string) bool {
	info, err := os.Stat(mountPoint)
	return err == nil && info.IsDir()
}
