// Package api is the HTTP adapter for the nitro_share backend REST API.
//
// It owns request construction (JSON bodies, request ids, the session credential
// header) and maps responses to typed values or errors. It does not keep any
// session state of its own beyond the credential it is told to send.
//
// Non-2xx responses surface as *StatusError (errors.Is(err, ErrStatus) holds);
// transport failures are wrapped with the operation name and carry no status.
package api
