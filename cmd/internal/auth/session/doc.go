// Package session owns the client-side session lifecycle for nitro_share.
//
// A Manager holds the current session grant and the user it belongs to, and
// moves between three states: absent, valid, and expired. Expired is never
// retained; detecting it (locally by expiry timestamp, or remotely when the
// backend rejects revalidation) collapses the state back to absent.
//
// The session and user are always set and cleared together. Readers observe
// either both or neither.
//
// Store operations never return backend failures. Logout always succeeds
// locally, and a failed revalidation reads as "logged out". The underlying
// errors go to the injected logger.
package session
