package keystore

import (
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/zalando/go-keyring"
)

// KeyringBackend stores secrets in the operating system credential vault:
// Keychain on macOS, Credential Manager on Windows, Secret Service over D-Bus
// on Linux and BSD.
type KeyringBackend struct{}

func (KeyringBackend) Name() string { return BackendKeyring }

func (KeyringBackend) Get(service, account string) (string, error) {
	v, err := keyring.Get(service, account)
	if err != nil {
		return "", classifyKeyring(err)
	}
	return v, nil
}

func (KeyringBackend) Set(service, account, secret string) error {
	return classifyKeyring(keyring.Set(service, account, secret))
}

func (KeyringBackend) Delete(service, account string) error {
	return classifyKeyring(keyring.Delete(service, account))
}

// D-Bus error names meaning no Secret Service is running on the bus.
var noAccessNames = map[string]bool{
	"org.freedesktop.DBus.Error.ServiceUnknown":   true,
	"org.freedesktop.DBus.Error.NameHasNoOwner":   true,
	"org.freedesktop.DBus.Error.NoServer":         true,
	"org.freedesktop.DBus.Error.Spawn.ExecFailed": true,
}

// noAccessMarkers match the untyped errors go-keyring v0.2.8 and
// godbus/dbus v5.2.2 return when the session bus itself is unreachable
// (dbus.SessionBus failing before any call is made). Recheck them when
// either module is upgraded.
var noAccessMarkers = []string{
	"org.freedesktop.secrets",
	"Cannot autolaunch D-Bus",
	"dbus: ",
	"DBUS_SESSION_BUS_ADDRESS",
}

func classifyKeyring(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyring.ErrNotFound):
		return wrap(KindNoEntry, err)
	case errors.Is(err, keyring.ErrSetDataTooBig):
		return wrap(KindAttributeTooLong, err)
	}
	var de dbus.Error
	if errors.As(err, &de) && noAccessNames[de.Name] {
		return wrap(KindNoStorageAccess, err)
	}
	msg := err.Error()
	for _, m := range noAccessMarkers {
		if strings.Contains(msg, m) {
			return wrap(KindNoStorageAccess, err)
		}
	}
	return wrap(KindPlatformFailure, err)
}
