// Package credstore persists the local account and the token signing
// secret in an embedded Badger database under the data directory.
//
// There is exactly one account. It is generated on first start with a
// random password that is printed once; after that the password exists
// only as a bcrypt hash.
package credstore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AccountUsername is the fixed username of the generated local account.
const AccountUsername = "hostpulse"

const (
	accountKeyPrefix = "account:"
	signingSecretKey = "secret:jwt"

	passwordBytes = 32
	secretBytes   = 32
)

// ErrNoAccount means the requested username has no stored account.
var ErrNoAccount = errors.New("account not found")

// account is the stored record for one username.
type account struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash []byte `json:"password_hash"`
}

// Store is the credential database.
type Store struct {
	db *badger.DB
}

// Open opens or creates the store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store, for tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory credential store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Bootstrap ensures the local account and signing secret exist. On first
// run it generates the account and returns its plaintext password so the
// caller can show it to the operator; on every later run the returned
// password is empty.
func (s *Store) Bootstrap() (password string, err error) {
	if err := s.ensureSigningSecret(); err != nil {
		return "", err
	}

	_, _, err = s.Lookup(AccountUsername)
	if err == nil {
		return "", nil
	}
	if !errors.Is(err, ErrNoAccount) {
		return "", err
	}

	password, err = randomToken(passwordBytes)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	acct := account{
		ID:           uuid.NewString(),
		Username:     AccountUsername,
		PasswordHash: hash,
	}
	data, err := json.Marshal(acct)
	if err != nil {
		return "", fmt.Errorf("encoding account: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(accountKeyPrefix+acct.Username), data)
	})
	if err != nil {
		return "", fmt.Errorf("storing account: %w", err)
	}
	return password, nil
}

// Lookup returns the account identifier and bcrypt password hash for
// username. It satisfies the auth credential interface.
func (s *Store) Lookup(username string) (string, []byte, error) {
	var acct account
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(accountKeyPrefix + username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &acct)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil, ErrNoAccount
	}
	if err != nil {
		return "", nil, fmt.Errorf("reading account: %w", err)
	}
	return acct.ID, acct.PasswordHash, nil
}

// SigningSecret returns the persisted token signing secret.
func (s *Store) SigningSecret() ([]byte, error) {
	var secret []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(signingSecretKey))
		if err != nil {
			return err
		}
		secret, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading signing secret: %w", err)
	}
	return secret, nil
}

// ensureSigningSecret generates and stores the signing secret when absent.
// Keeping it in the store means issued tokens survive a restart within
// their lifetime.
func (s *Store) ensureSigningSecret() error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(signingSecretKey))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("reading signing secret: %w", err)
		}

		secret := make([]byte, secretBytes)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generating signing secret: %w", err)
		}
		return txn.Set([]byte(signingSecretKey), secret)
	})
}

// randomToken returns n bytes of crypto-random data in base64url form.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
