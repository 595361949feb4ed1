// Package types defines the core data model of the store: the tagged
// Value variant over string/list/hash/set, and the per-key metadata
// tracked alongside it. These types are shared by every other package
// that touches a key's data.
package types
