// Package domain settings.go contains the singleton settings record.
package domain

// SettingsID is the fixed primary key of the singleton settings row.
const SettingsID = 1

// Settings is the single configuration record of the application: the remote
// endpoint, the bearer credential used against it, and optional proxy settings.
// AccessToken is plaintext only in memory; it is persisted sealed.
type Settings struct {
	URL         string `json:"url"`
	AccessToken string `json:"accessToken"`
	UseProxies  bool   `json:"useProxies"`
	ProxyURL    string `json:"proxyUrl"`
}

// DefaultSettings returns the record materialized on first read: empty URL,
// empty token, proxy disabled.
func DefaultSettings() Settings {
	return Settings{}
}

// Configured reports whether enough is set to attempt a connection.
func (s Settings) Configured() bool {
	return s.URL != "" && s.AccessToken != ""
}

// Redacted returns a copy safe to log or print.
func (s Settings) Redacted() Settings {
	if s.AccessToken != "" {
		s.AccessToken = "[redacted]"
	}
	return s
}
