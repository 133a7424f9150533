package keys

import (
	"fmt"
	"sync"
)

// Keyring holds the signer for each tenant. A code or token signed under
// one tenant's key never verifies under another's. Mutated only at startup
// and on key rotation.
type Keyring struct {
	mu      sync.RWMutex
	signers map[string]Signer
}

func NewKeyring() *Keyring {
	return &Keyring{signers: make(map[string]Signer)}
}

// Register installs (or rotates) the signer for a tenant.
func (k *Keyring) Register(tenantID string, signer Signer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.signers[tenantID] = signer
}

// SignerFor returns the signer for a tenant. There is no default signer:
// an unknown tenant cannot sign or verify anything.
func (k *Keyring) SignerFor(tenantID string) (Signer, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	signer, ok := k.signers[tenantID]
	if !ok {
		return nil, fmt.Errorf("no signing key registered for tenant %q", tenantID)
	}
	return signer, nil
}

// JWKSFor returns the public key set for a tenant.
func (k *Keyring) JWKSFor(tenantID string) (*JWKS, error) {
	signer, err := k.SignerFor(tenantID)
	if err != nil {
		return nil, err
	}
	keyPairSigner, ok := signer.(*KeyPairSigner)
	if !ok {
		return nil, fmt.Errorf("JWKS only supported for asymmetric signing (RSA)")
	}
	return keyPairSigner.GetJWKS()
}
