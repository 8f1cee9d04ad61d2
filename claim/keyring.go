package claim

import (
	"context"
	"encoding/hex"
	"fmt"
)

// Keyring is a static set of attestation secrets keyed by source
type Keyring map[string][]byte

// ParseKeyring builds a Keyring from hex-encoded secrets keyed by source,
// as loaded from configuration
func ParseKeyring(hexSecrets map[string]string) (Keyring, error) {
	k := make(Keyring, len(hexSecrets))
	for source, encoded := range hexSecrets {
		secret, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("secret for %q: %w", source, err)
		}
		if len(secret) == 0 {
			return nil, fmt.Errorf("secret for %q is empty", source)
		}
		k[source] = secret
	}
	return k, nil
}

// Secret returns the secret of source or ErrUnknownSource
func (k Keyring) Secret(_ context.Context, source string) ([]byte, error) {
	secret, ok := k[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return secret, nil
}
