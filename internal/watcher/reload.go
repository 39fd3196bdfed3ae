package watcher

import (
	"netmirror/internal/config"
	"netmirror/internal/logging"
)

// CredentialSetter accepts new upstream credentials at runtime
type CredentialSetter interface {
	SetCredentials(baseURL, token, scheme string)
}

// ConfigReloader returns a change callback that re-reads the config at path
// and applies the settings that can change without a restart: upstream
// credentials and the log level. An invalid file is logged and ignored.
func ConfigReloader(path string, client CredentialSetter) func() {
	return func() {
		cfg, _, err := config.LoadFromPath(path)
		if err != nil {
			logging.Error().Err(err).Str("path", path).Msg("Ignoring invalid config reload")
			return
		}

		client.SetCredentials(cfg.Upstream.URL, cfg.Upstream.Token, cfg.Upstream.AuthScheme)
		logging.SetLevel(cfg.Log.Level)
		logging.Info().Str("config", cfg.Summary()).Msg("Config reloaded")
	}
}
