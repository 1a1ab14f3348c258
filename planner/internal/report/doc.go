// Package report renders planner results for the terminal (text) or for
// other programs (json).
package report
