package store

import (
	"context"
	"errors"

	"github.com/haukened/roomtemp/internal/crypto"
	"github.com/haukened/roomtemp/internal/domain"
)

// Store is the secure settings store. It seals the access token on write and
// opens it on read; everything else is stored as is.
type Store struct {
	repo Repository
	keys KeySource
}

// New returns a Store over repo, sealing with keys from keys.
func New(repo Repository, keys KeySource) *Store {
	return &Store{repo: repo, keys: keys}
}

// Get returns the settings record. When none exists yet a default record is
// sealed and persisted, then the stored row is read back, so a record always
// exists after the first read.
func (s *Store) Get(ctx context.Context) (domain.Settings, error) {
	if s == nil || s.repo == nil || s.keys == nil {
		return domain.Settings{}, errors.New("store not properly initialized")
	}
	row, err := s.repo.Load(ctx)
	if errors.Is(err, ErrNoRecord) {
		if err := s.insertDefault(ctx); err != nil {
			return domain.Settings{}, err
		}
		// a concurrent Set may have won the insert; return what is stored
		row, err = s.repo.Load(ctx)
	}
	if err != nil {
		return domain.Settings{}, &Error{Op: "get", Kind: KindStorage, Err: err}
	}
	box, err := s.box("get")
	if err != nil {
		return domain.Settings{}, err
	}
	token, err := box.Decrypt(row.Ciphertext, row.Nonce)
	if err != nil {
		return domain.Settings{}, &Error{Op: "get", Kind: KindCrypto, Err: err}
	}
	return domain.Settings{
		URL:         row.URL,
		AccessToken: token,
		UseProxies:  row.UseProxies,
		ProxyURL:    row.ProxyURL,
	}, nil
}

// Set seals settings.AccessToken under a fresh nonce and replaces the stored
// record in one transaction.
func (s *Store) Set(ctx context.Context, settings domain.Settings) error {
	if s == nil || s.repo == nil || s.keys == nil {
		return errors.New("store not properly initialized")
	}
	sealed, err := s.seal("set", settings)
	if err != nil {
		return err
	}
	if err := s.repo.Replace(ctx, sealed); err != nil {
		return &Error{Op: "set", Kind: KindStorage, Err: err}
	}
	return nil
}

func (s *Store) insertDefault(ctx context.Context) error {
	sealed, err := s.seal("get", domain.DefaultSettings())
	if err != nil {
		return err
	}
	if err := s.repo.InsertDefault(ctx, sealed); err != nil {
		return &Error{Op: "get", Kind: KindStorage, Err: err}
	}
	return nil
}

func (s *Store) seal(op string, settings domain.Settings) (Sealed, error) {
	box, err := s.box(op)
	if err != nil {
		return Sealed{}, err
	}
	ct, nonce, err := box.Encrypt(settings.AccessToken)
	if err != nil {
		return Sealed{}, &Error{Op: op, Kind: KindCrypto, Err: err}
	}
	return Sealed{
		URL:        settings.URL,
		Ciphertext: ct,
		Nonce:      nonce,
		UseProxies: settings.UseProxies,
		ProxyURL:   settings.ProxyURL,
	}, nil
}

// box fetches the key and builds a cipher; the key copy is wiped afterwards.
func (s *Store) box(op string) (*crypto.Box, error) {
	key, err := s.keys.GetOrCreateKey()
	if err != nil {
		return nil, &Error{Op: op, Kind: KindKeystore, Err: err}
	}
	defer clear(key)
	b, err := crypto.New(key)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindCrypto, Err: err}
	}
	return b, nil
}
