package session

import "errors"

var (
	// ErrNoSession is returned by Authenticate when the backend accepted the
	// credentials but did not issue a session grant.
	ErrNoSession = errors.New("no session issued")

	// ErrInvalidCredentials is returned by Authenticate when the backend rejects the login.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
