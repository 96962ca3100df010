// Package persist keeps client store state across restarts.
//
// A Store is a small key/value backend (file, Redis, Postgres or memory). A
// Codec turns store state into bytes (JSON or CBOR). A Binding ties one store
// state type to one key: it saves after every change and loads once at startup.
//
// Persisted session state contains a bearer credential. Sealed wraps any Store
// with passphrase-based authenticated encryption for deployments where the
// backend is shared or the disk is not trusted.
package persist
