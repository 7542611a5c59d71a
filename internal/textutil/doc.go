// Package textutil sanitizes untrusted text (video titles, extractor
// extensions) before it becomes part of a file name or response header.
package textutil
