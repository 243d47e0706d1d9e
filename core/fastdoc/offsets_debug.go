//go:build textimager_debug

package fastdoc

// checkOffsets makes AddAnnotation panic on spans outside the text.
const checkOffsets = true
