// Package watch reloads a file whenever it changes on disk.
//
// File watches the file's directory rather than the file itself, so editors
// and config managers that save by writing a temporary file and renaming it
// over the original keep triggering reloads. Bursts of events are coalesced
// into one reload.
package watch
