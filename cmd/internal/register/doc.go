// Package register holds the sign-up helpers: availability checks against
// the backend, local username/email/password validation and the register call.
//
// Validation mirrors the backend rules so obviously bad input is rejected
// before a request is made. The backend stays authoritative.
package register
