package config

// ConfigBackend holds the non-secret settings `slotbot config set` writes,
// such as the slot catalog and server port. macOS keeps them in the
// com.slotbot.app defaults domain, other platforms in
// $XDG_CONFIG_HOME/slotbot/config.json.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
