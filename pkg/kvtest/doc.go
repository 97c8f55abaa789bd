// Package kvtest starts throwaway key-value store containers for integration
// tests. Every Start function returns a connected client, and a teardown
// function that purges the container.
package kvtest
