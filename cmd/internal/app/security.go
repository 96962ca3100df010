package app

import "fmt"

// minPassphraseBytes is the shortest state passphrase accepted under
// NITRO_REQUIRE_SEALED_STATE.
const minPassphraseBytes = 12

// ValidateSecurityConfig enforces the at-rest policy for the persisted
// session, which holds a bearer credential. With RequireSealedState set, a
// missing or short passphrase is a startup error.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireSealedState {
		return nil
	}
	if cfg.State.Backend == BackendMemory {
		return nil
	}

	switch n := len(cfg.State.Passphrase); {
	case n == 0:
		return fmt.Errorf("%w: NITRO_REQUIRE_SEALED_STATE=true but NITRO_STATE_PASSPHRASE is missing", ErrConfig)
	case n < minPassphraseBytes:
		return fmt.Errorf("%w: NITRO_STATE_PASSPHRASE is too short (min %d bytes)", ErrConfig, minPassphraseBytes)
	}
	return nil
}
