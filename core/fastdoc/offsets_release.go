//go:build !textimager_debug

package fastdoc

const checkOffsets = false
