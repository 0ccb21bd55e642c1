// Package credstore implements the atomic credential-rotation protocol
// (spec §4B): four on-disk files updated in a fixed order, each preceded by
// a backup, with reverse-order restore on any failure, and the in-memory
// SPA keys only swapped into the transport facade after every write has
// succeeded.
package credstore

import (
	"os"

	"github.com/sdpc-project/sdpc/internal/codec"
	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
)

// Paths names the four on-disk targets the store mutates.
type Paths struct {
	CertFile         string
	KeyFile          string
	ClientConfigFile string
	FwknopConfigFile string
}

// KeyReceiver is the narrow slice of the transport facade the store needs:
// a place to install the newly rotated SPA keys once the filesystem side
// has committed. Implemented by internal/transport.Facade.
type KeyReceiver interface {
	SetSPAKeys(encryptionKey, hmacKey []byte)
}

// step is one of the four ordered file mutations.
type step struct {
	name    string
	apply   func() error
	backup  []byte
	path    string
	existed bool
}

// Apply writes bundle to disk across the four targets in spec order (cert,
// key, client-config SPA stanza, fwknop-config SPA stanza), backing up each
// target before overwriting it. On any write failure, every already-
// overwritten target is restored from its backup in reverse order and the
// error is returned; no partial update is ever left observable (spec
// invariant 4). Only after all four writes succeed are the transport
// facade's in-memory SPA keys replaced — a failure at that point is
// reported as a non-fatal warning via the returned memWarning, since the files
// are already consistent and a future restart will re-read them.
func Apply(paths Paths, bundle codec.CredentialBundle, keys KeyReceiver) (memWarning error, err error) {
	steps := []step{
		{
			name: "tls cert",
			path: paths.CertFile,
			apply: func() error {
				return os.WriteFile(paths.CertFile, []byte(bundle.TLSCertPEM), 0o600)
			},
		},
		{
			name: "tls key",
			path: paths.KeyFile,
			apply: func() error {
				return os.WriteFile(paths.KeyFile, []byte(bundle.TLSKeyPEM), 0o600)
			},
		},
		{
			name: "client config spa keys",
			path: paths.ClientConfigFile,
			apply: func() error {
				return replaceSPAKeysInFile(paths.ClientConfigFile, bundle.SPAEncryptionKey, bundle.SPAHMACKey)
			},
		},
		{
			name: "fwknop config spa keys",
			path: paths.FwknopConfigFile,
			apply: func() error {
				return replaceSPAKeysInFile(paths.FwknopConfigFile, bundle.SPAEncryptionKey, bundle.SPAHMACKey)
			},
		},
	}

	applied := make([]step, 0, len(steps))

	for i := range steps {
		s := &steps[i]
		backup, existed, berr := readBackup(s.path)
		if berr != nil {
			rollback(applied)
			return nil, sdperrors.Wrapf(berr, sdperrors.KindFilesystemOperation, "backup %s before update", s.name)
		}
		s.backup = backup
		s.existed = existed

		if aerr := s.apply(); aerr != nil {
			rollback(applied)
			return nil, sdperrors.Wrapf(aerr, sdperrors.KindFilesystemOperation, "write %s", s.name)
		}
		applied = append(applied, *s)
	}

	// All four writes succeeded; the files are consistent even if the
	// in-memory swap below fails.
	if keys != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					memWarning = sdperrors.Errorf(sdperrors.KindMemoryAllocation, "installing rotated SPA keys: %v", r)
				}
			}()
			keys.SetSPAKeys([]byte(bundle.SPAEncryptionKey), []byte(bundle.SPAHMACKey))
		}()
	}

	return memWarning, nil
}

// rollback restores every applied step from its backup, in reverse order
// (spec §4B).
func rollback(applied []step) {
	for i := len(applied) - 1; i >= 0; i-- {
		s := applied[i]
		if !s.existed {
			_ = os.Remove(s.path)
			continue
		}
		_ = os.WriteFile(s.path, s.backup, 0o600)
	}
}

// readBackup returns the current content of path (nil, false if the file
// doesn't exist yet).
func readBackup(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}
