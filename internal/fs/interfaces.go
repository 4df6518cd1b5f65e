package fs

import (
	fusefs "bazil.org/fuse/fs"
)

// Node represents a filesystem node (file or directory)
type Node interface {
	fusefs.Node
}

// Directory lists the capabilities a directory node serves
type Directory interface {
	Node
	fusefs.NodeStringLookuper
	fusefs.HandleReadDirAller
}

// RegularFile lists the capabilities a file node serves
type RegularFile interface {
	Node
	fusefs.NodeOpener
	fusefs.NodeGetxattrer
	fusefs.NodeListxattrer
	fusefs.NodeSetxattrer
	fusefs.NodeRemovexattrer
}

// ReadHandle is an open handle capable of byte range reads
type ReadHandle interface {
	fusefs.Handle
	fusefs.HandleReader
	fusefs.HandleReleaser
}

// Compile-time checks that the concrete types cover their capability sets
var (
	_ fusefs.FS         = (*StillFS)(nil)
	_ fusefs.FSStatfser = (*StillFS)(nil)
	_ Directory         = (*Dir)(nil)
	_ RegularFile       = (*File)(nil)
	_ ReadHandle        = (*FileHandle)(nil)
)
