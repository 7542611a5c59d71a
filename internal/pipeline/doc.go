// Package pipeline moves the selected stream's bytes into a job workspace
// and converts them to the delivered MP3.
//
// The executor owns the workspace layout: the raw download is written to
// source.<ext> and the conversion result to output.mp3. Both names are fixed
// so nothing derived from platform metadata ever touches the filesystem.
package pipeline
