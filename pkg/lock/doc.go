// Package lock provides distributed mutual exclusion across cluster members.
//
// The lock/cas implementation builds a lock out of a single boolean flag in a
// kv.Store, mutated exclusively through compare-and-swap.
package lock
