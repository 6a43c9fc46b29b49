// Package state keeps one typed conversation per user and routes follow-up
// input to the feature that owns it.
package state
