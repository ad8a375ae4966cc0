// Package fileio resolves logical (virtual) include paths against a tree of
// physical mount points, the way the host engine's filesystem overlay does:
// many physical directories can be mounted under one virtual prefix, and the
// first one (in mount order) that contains the requested file wins.
package fileio

// PathInfo pairs a resolved physical path with the logical path the program
// saw. Both are normalized: forward slashes, no trailing separator.
type PathInfo struct {
	Physical string
	Virtual  string
}

// Root is the PathInfo used when there is no "current file" context yet,
// e.g. resolving the very first file a host asks to run.
var Root = PathInfo{}
