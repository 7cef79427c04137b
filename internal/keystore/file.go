package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	maxLabelLen  = 255
	maxSecretLen = 4096
)

// FileBackend stores each secret in its own 0600 file under root/service/.
// It is meant for headless hosts without a credential vault; the key is only
// as safe as the account's file permissions.
type FileBackend struct {
	root string
}

// NewFileBackend returns a FileBackend rooted at root, creating it with 0700
// permissions when missing.
func NewFileBackend(root string) (*FileBackend, error) {
	if root == "" || root == "." {
		return nil, wrap(KindInvalidAttribute, errors.New("file backend requires a directory"))
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, classifyFS(err)
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, classifyFS(err)
	}
	if !fi.IsDir() {
		return nil, wrap(KindBadDataFormat, fmt.Errorf("%s is not a directory", root))
	}
	return &FileBackend{root: root}, nil
}

func (b *FileBackend) Name() string { return BackendFile }

func (b *FileBackend) path(service, account string) (string, error) {
	for _, label := range []string{service, account} {
		if err := validateLabel(label); err != nil {
			return "", err
		}
	}
	return filepath.Join(b.root, service, account), nil
}

func (b *FileBackend) Get(service, account string) (string, error) {
	p, err := b.path(service, account)
	if err != nil {
		return "", err
	}
	fi, err := os.Lstat(p)
	if err != nil {
		return "", classifyFS(err)
	}
	if !fi.Mode().IsRegular() {
		return "", wrap(KindBadDataFormat, fmt.Errorf("%s is not a regular file", p))
	}
	// #nosec G304: path is root plus two validated labels.
	data, err := os.ReadFile(p)
	if err != nil {
		return "", classifyFS(err)
	}
	if !utf8.Valid(data) {
		return "", wrap(KindBadEncoding, errors.New("stored secret is not valid UTF-8"))
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// Set writes the secret atomically: temp file, fsync, rename.
func (b *FileBackend) Set(service, account, secret string) error {
	p, err := b.path(service, account)
	if err != nil {
		return err
	}
	if len(secret) > maxSecretLen {
		return wrap(KindAttributeTooLong, fmt.Errorf("secret exceeds %d bytes", maxSecretLen))
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return classifyFS(err)
	}
	f, err := os.CreateTemp(dir, ".tmp-"+account+"-*")
	if err != nil {
		return classifyFS(err)
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(tmp)
		}
	}()
	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		return classifyFS(err)
	}
	if _, err := f.WriteString(secret); err != nil {
		_ = f.Close()
		return classifyFS(err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return classifyFS(err)
	}
	if err := f.Close(); err != nil {
		return classifyFS(err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return classifyFS(err)
	}
	ok = true
	return nil
}

func (b *FileBackend) Delete(service, account string) error {
	p, err := b.path(service, account)
	if err != nil {
		return err
	}
	return classifyFS(os.Remove(p))
}

func validateLabel(label string) error {
	switch {
	case label == "", label == ".", label == "..":
		return wrap(KindInvalidAttribute, fmt.Errorf("invalid label %q", label))
	case len(label) > maxLabelLen:
		return wrap(KindAttributeTooLong, fmt.Errorf("label exceeds %d bytes", maxLabelLen))
	case strings.ContainsAny(label, `/\`+"\x00"):
		return wrap(KindInvalidAttribute, fmt.Errorf("label %q contains a path separator", label))
	}
	return nil
}

func classifyFS(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return wrap(KindNoEntry, err)
	case errors.Is(err, fs.ErrPermission):
		return wrap(KindNoStorageAccess, err)
	default:
		return wrap(KindPlatformFailure, err)
	}
}
