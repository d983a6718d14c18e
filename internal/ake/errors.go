package ake

import "errors"

var errInvalidSeedLength = errors.New("ake: oprf seed must be 32 bytes")
var errEnvelopeTooShort = errors.New("ake: envelope truncated")
var errServerIdentityMismatch = errors.New("ake: registration bound to a different server identity")
var errClientMACMismatch = errors.New("ake: client authentication failed")
