package session

import "github.com/matheus3301/imsync/internal/config"

// DefaultSessionName is used when neither the command line nor the config
// picks an account.
const DefaultSessionName = "main"

// Resolve picks the session both imsyncd and imctl act on. An explicit
// --session wins, then default_session (or IMSYNC_DEFAULT_SESSION). A
// config file that fails to load is ignored.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
