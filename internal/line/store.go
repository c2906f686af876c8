package line

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/and161185/omikuji/internal/crypto/clientcrypto"
	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/idtoken"
)

const (
	credentialFile = "credential.json"
	pendingFile    = "pending_login.json"
	envelopeV1     = 1
)

// Credential is the host login result persisted between visits.
type Credential struct {
	AccessToken string    `json:"access_token"`
	IDToken     string    `json:"id_token"`
	Scope       string    `json:"scope,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"` // access token expiry
}

// Valid reports whether the access token and the ID token are both present
// and unexpired at now. LINE ID tokens expire after about an hour while the
// access token lasts weeks; a credential with a stale ID token cannot
// authenticate to the ledger and needs a fresh login.
func (c Credential) Valid(now time.Time) bool {
	if c.AccessToken == "" || !now.Before(c.ExpiresAt) {
		return false
	}
	claims, err := idtoken.Decode(c.IDToken)
	return err == nil && now.Before(claims.ExpiresAt)
}

// PendingLogin keeps the anti-forgery state and nonce of a started login.
type PendingLogin struct {
	State     string    `json:"state"`
	Nonce     string    `json:"nonce"`
	CreatedAt time.Time `json:"created_at"`
}

// envelope is the on-disk format of a sealed file.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	Sealed []byte `json:"sealed"`
}

// ConfigDir returns $XDG_CONFIG_HOME/omikuji or ~/.config/omikuji.
func ConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "omikuji")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "omikuji")
}

// Store persists credentials under dir. With a passphrase, files are sealed
// with a key derived from it; without one they are plain JSON (0600).
type Store struct {
	dir        string
	passphrase []byte
}

// NewStore constructs a Store rooted at dir.
func NewStore(dir string, passphrase []byte) *Store {
	return &Store{dir: dir, passphrase: passphrase}
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// SaveCredential writes c.
func (s *Store) SaveCredential(c Credential) error { return s.write(credentialFile, "credential", c) }

// LoadCredential reads the stored credential; errs.ErrNotFound when absent.
func (s *Store) LoadCredential() (Credential, error) {
	var c Credential
	err := s.read(credentialFile, "credential", &c)
	return c, err
}

// ClearCredential removes the stored credential.
func (s *Store) ClearCredential() error { return s.remove(credentialFile) }

// SavePending writes the pending login.
func (s *Store) SavePending(p PendingLogin) error { return s.write(pendingFile, "pending-login", p) }

// LoadPending reads the pending login; errs.ErrNotFound when absent.
func (s *Store) LoadPending() (PendingLogin, error) {
	var p PendingLogin
	err := s.read(pendingFile, "pending-login", &p)
	return p, err
}

// ClearPending removes the pending login.
func (s *Store) ClearPending() error { return s.remove(pendingFile) }

func (s *Store) write(name, purpose string, v any) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return err
	}
	out := plain
	if len(s.passphrase) > 0 {
		salt, err := clientcrypto.Rand(clientcrypto.SaltLen)
		if err != nil {
			return err
		}
		key, err := s.key(salt, purpose)
		if err != nil {
			return err
		}
		sealed, err := clientcrypto.Seal(key, plain, aad(name))
		if err != nil {
			return err
		}
		if out, err = json.Marshal(envelope{V: envelopeV1, Salt: salt, Sealed: sealed}); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, name+".tmp")
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.dir, name))
}

func (s *Store) read(name, purpose string, v any) error {
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return errs.ErrNotFound
	}
	if err != nil {
		return err
	}
	if len(s.passphrase) == 0 {
		return json.Unmarshal(b, v)
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if env.V != envelopeV1 || len(env.Sealed) == 0 {
		return fmt.Errorf("%s: not a sealed file (was it written without a passphrase?)", name)
	}
	key, err := s.key(env.Salt, purpose)
	if err != nil {
		return err
	}
	plain, err := clientcrypto.Open(key, env.Sealed, aad(name))
	if err != nil {
		return fmt.Errorf("%s: unseal: %w", name, err)
	}
	return json.Unmarshal(plain, v)
}

func (s *Store) remove(name string) error {
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) key(salt []byte, purpose string) ([]byte, error) {
	master := clientcrypto.DeriveMasterKey(s.passphrase, salt)
	return clientcrypto.DeriveSubkey(master, purpose)
}

func aad(name string) []byte { return []byte("omikuji/" + name + "/v1") }
