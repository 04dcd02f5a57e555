// Package state keeps the live sessions of a multi-chat host in memory.
// Nothing is written to disk: a restart starts every chat afresh.
package state
