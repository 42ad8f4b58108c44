// Package ui models the sidebar state as a pure reducer over bus messages,
// plus the dispatch loop and cache that keep the last translation and
// status across restarts.
package ui
