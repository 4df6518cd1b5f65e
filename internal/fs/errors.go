// Package fs serves an immutable catalog as a read-only FUSE filesystem.
//
// This file contains the error taxonomy and its mapping onto FUSE errnos.
package fs

import (
	"errors"
	"fmt"
	"syscall"

	"bazil.org/fuse"

	"stillfs/internal/catalog"
	"stillfs/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrNoSuchEntry indicates the requested inode or name does not exist
	ErrNoSuchEntry = errors.New("no such entry")

	// ErrNotADirectory indicates a directory operation reached a file inode
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsADirectory indicates a file operation reached a directory inode
	ErrIsADirectory = errors.New("is a directory")

	// ErrReadOnly indicates an attempt to modify the filesystem
	ErrReadOnly = errors.New("filesystem is read-only")

	// ErrNoXattr indicates the requested extended attribute is not set
	ErrNoXattr = errors.New("no such extended attribute")
)

// Error wraps operation failures with the operation name, the inode it
// targeted, and for named operations the name involved.
type Error struct {
	Op    string          // Operation that failed (e.g., "lookup", "readdir")
	Inode catalog.InodeID // Affected inode
	Name  string          // Child or attribute name, when the operation has one
	Err   error           // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("operation %s on inode %d failed: %v", e.Op, e.Inode, e.Err)
	}
	return fmt.Sprintf("operation %s on inode %d name %q failed: %v", e.Op, e.Inode, e.Name, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given operation, inode, name, and
// underlying error
func NewError(op string, ino catalog.InodeID, name string, err error) *Error {
	opErr := &Error{
		Op:    op,
		Inode: ino,
		Name:  name,
		Err:   err,
	}
	errLogger.Trace("Created new error: %v", opErr)
	return opErr
}

// ToFuseError converts an internal error to the appropriate FUSE error
// code. This is used to translate our error taxonomy into the syscall
// errors FUSE expects.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	errLogger.Trace("Converting error to FUSE error: %v", err)
	switch {
	case errors.Is(err, ErrNoSuchEntry):
		return syscall.ENOENT
	case errors.Is(err, ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, ErrIsADirectory):
		return syscall.EISDIR
	case errors.Is(err, ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, ErrNoXattr):
		return fuse.ErrNoXattr
	default:
		errLogger.Debug("Unknown error type, returning EIO: %v", err)
		return syscall.EIO
	}
}

// Common operation names for consistent logging and error reporting
const (
	OpGetattr   = "getattr"   // Reading inode attributes
	OpLookup    = "lookup"    // Resolving a name in a directory
	OpReadDir   = "readdir"   // Reading directory contents
	OpOpen      = "open"      // Opening a file
	OpRead      = "read"      // Reading from a file
	OpGetxattr  = "getxattr"  // Reading one extended attribute
	OpListxattr = "listxattr" // Listing extended attribute names
	OpStatfs    = "statfs"    // Reading filesystem totals
)

// IsTemporary returns true if the error is likely temporary and the
// operation could succeed if retried. Unmounting a freshly released
// mount is the main caller: the kernel keeps it busy for a moment.
func IsTemporary(err error) bool {
	var opErr *Error
	if errors.As(err, &opErr) {
		return false // Our internal errors are not temporary
	}

	switch {
	case errors.Is(err, syscall.EAGAIN):
		return true
	case errors.Is(err, syscall.EBUSY):
		return true
	case errors.Is(err, syscall.ETIMEDOUT):
		return true
	default:
		return false
	}
}
