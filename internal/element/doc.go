// Package element defines device elements, the registry that keeps them in
// creation order, and the dispatch helpers that supply default behaviour for
// hooks an element does not implement.
//
// An element is any value that embeds Base (or otherwise implements
// Element). Hooks are optional capability interfaces: ConfigLoader,
// ConnectedIterator, CalCfgHandler and so on. The helpers in hooks.go check
// for the capability and fall back to the documented default, so an element
// implements only what it uses.
//
// The registry is an append-only arena. Handles are stable indices and never
// dangle. Adding an element publishes a new snapshot atomically and raises
// the staleness flag; timer goroutines read snapshots without locking.
package element
