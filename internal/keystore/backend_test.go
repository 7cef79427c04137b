package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringBackendWithMock(t *testing.T) {
	keyring.MockInit()
	be := KeyringBackend{}

	_, err := be.Get("svc", Account)
	assert.ErrorIs(t, err, ErrNoEntry)

	require.NoError(t, be.Set("svc", Account, "value"))
	v, err := be.Get("svc", Account)
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	require.NoError(t, be.Delete("svc", Account))
	_, err = be.Get("svc", Account)
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestKeyringBackendCustodian(t *testing.T) {
	keyring.MockInit()
	c, err := New(KeyringBackend{}, "net.example.roomtemp", quietLogger())
	require.NoError(t, err)
	k1, err := c.GetOrCreateKey()
	require.NoError(t, err)
	k2, err := c.GetOrCreateKey()
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestClassifyKeyring(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want *Error
	}{
		{name: "not_found", in: keyring.ErrNotFound, want: ErrNoEntry},
		{name: "too_big", in: keyring.ErrSetDataTooBig, want: ErrAttributeTooLong},
		{name: "secrets_not_provided", in: errors.New("The name org.freedesktop.secrets was not provided by any .service files"), want: ErrNoStorageAccess},
		{name: "autolaunch", in: errors.New("exec: dbus-launch: Cannot autolaunch D-Bus without X11 $DISPLAY"), want: ErrNoStorageAccess},
		{name: "session_bus_address", in: errors.New("dbus: couldn't determine address of session bus"), want: ErrNoStorageAccess},
		{name: "bus_address_unset", in: errors.New("DBUS_SESSION_BUS_ADDRESS is not set"), want: ErrNoStorageAccess},
		{name: "dbus_service_unknown", in: dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown", Body: []any{"no such service"}}, want: ErrNoStorageAccess},
		{name: "dbus_no_owner", in: fmt.Errorf("open session: %w", dbus.Error{Name: "org.freedesktop.DBus.Error.NameHasNoOwner"}), want: ErrNoStorageAccess},
		{name: "dbus_locked", in: dbus.Error{Name: "org.freedesktop.Secret.Error.IsLocked", Body: []any{"collection is locked"}}, want: ErrPlatformFailure},
		{name: "other", in: errors.New("boom"), want: ErrPlatformFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyKeyring(tc.in)
			assert.ErrorIs(t, got, tc.want)
			var ke *Error
			require.ErrorAs(t, got, &ke)
			assert.Equal(t, tc.in, ke.Err, "cause is kept")
		})
	}
	assert.NoError(t, classifyKeyring(nil))
}

func TestKeyringBackendMockError(t *testing.T) {
	keyring.MockInitWithError(errors.New("vault locked"))
	t.Cleanup(keyring.MockInit)
	_, err := KeyringBackend{}.Get("svc", Account)
	assert.ErrorIs(t, err, ErrPlatformFailure)
}

func TestFileBackendRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), "keys")
	be, err := NewFileBackend(root)
	require.NoError(t, err)

	_, err = be.Get("svc", Account)
	assert.ErrorIs(t, err, ErrNoEntry)

	require.NoError(t, be.Set("svc", Account, "abc"))
	v, err := be.Get("svc", Account)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	fi, err := os.Stat(filepath.Join(root, "svc", Account))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	require.NoError(t, be.Set("svc", Account, "def"))
	v, err = be.Get("svc", Account)
	require.NoError(t, err)
	assert.Equal(t, "def", v)

	entries, err := os.ReadDir(filepath.Join(root, "svc"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")

	require.NoError(t, be.Delete("svc", Account))
	assert.ErrorIs(t, be.Delete("svc", Account), ErrNoEntry)
}

func TestFileBackendLabelValidation(t *testing.T) {
	be, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`, "nul\x00"} {
		_, err := be.Get(bad, Account)
		assert.ErrorIs(t, err, ErrInvalidAttribute, "label %q", bad)
	}
	_, err = be.Get(strings.Repeat("s", maxLabelLen+1), Account)
	assert.ErrorIs(t, err, ErrAttributeTooLong)
	err = be.Set("svc", Account, strings.Repeat("x", maxSecretLen+1))
	assert.ErrorIs(t, err, ErrAttributeTooLong)
}

func TestFileBackendBadData(t *testing.T) {
	root := t.TempDir()
	be, err := NewFileBackend(root)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "svc", Account), 0o700))
	_, err = be.Get("svc", Account)
	assert.ErrorIs(t, err, ErrBadDataFormat)

	require.NoError(t, os.WriteFile(filepath.Join(root, "svc", "other"), []byte{0xff, 0xfe}, 0o600))
	_, err = be.Get("svc", "other")
	assert.ErrorIs(t, err, ErrBadEncoding)
}

func TestFileBackendCustodian(t *testing.T) {
	root := t.TempDir()
	be, err := NewFileBackend(root)
	require.NoError(t, err)
	c, err := New(be, "svc", quietLogger())
	require.NoError(t, err)
	k1, err := c.GetOrCreateKey()
	require.NoError(t, err)

	// a fresh backend over the same directory sees the persisted key
	be2, err := NewFileBackend(root)
	require.NoError(t, err)
	c2, err := New(be2, "svc", quietLogger())
	require.NoError(t, err)
	k2, err := c2.GetOrCreateKey()
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestNewBackend(t *testing.T) {
	be, err := NewBackend("", "")
	require.NoError(t, err)
	assert.Equal(t, BackendKeyring, be.Name())

	be, err = NewBackend(BackendMemory, "")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, be.Name())

	be, err = NewBackend(BackendFile, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, BackendFile, be.Name())

	_, err = NewBackend(BackendFile, "")
	assert.ErrorIs(t, err, ErrInvalidAttribute)

	_, err = NewBackend("vault", "")
	assert.Error(t, err)
}

func TestMemoryBackendDelete(t *testing.T) {
	be := NewMemoryBackend()
	assert.ErrorIs(t, be.Delete("svc", Account), ErrNoEntry)
	require.NoError(t, be.Set("svc", Account, "x"))
	require.NoError(t, be.Delete("svc", Account))
}
