// Package keys is a minimal host-key load-or-generate helper. Host key
// management proper (multi-algorithm generation, XDG paths, rotation) is an
// external collaborator to the core per the specification; this package
// offers just enough to hand the session controller a signer.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

const hostKeyFileName = "ssh_host_ed25519_key"

// LoadOrGenerate reads an ed25519 host key from folder, generating and
// persisting one if none exists yet.
func LoadOrGenerate(folder string) (ssh.Signer, error) {
	if err := os.MkdirAll(folder, 0700); err != nil {
		return nil, fmt.Errorf("creating key folder %s: %w", folder, err)
	}
	path := filepath.Join(folder, hostKeyFileName)

	if data, err := os.ReadFile(path); err == nil {
		block, _ := pem.Decode(data)
		if block != nil {
			key := ed25519.PrivateKey(block.Bytes)
			if len(key) == ed25519.PrivateKeySize {
				return ssh.NewSignerFromKey(key)
			}
		}
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating host key: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("writing host key %s: %w", path, err)
	}
	defer f.Close()
	if err := pem.Encode(f, &pem.Block{Type: "OPENSSH PRIVATE KEY", Bytes: priv}); err != nil {
		return nil, fmt.Errorf("encoding host key: %w", err)
	}

	return ssh.NewSignerFromKey(priv)
}
