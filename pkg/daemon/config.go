package daemon

// Config points at the user-driven configuration files.
// Live reload only applies to the pad settings file.
type Config struct {
	SettingsConfig string `json:"settingsConfig"`
	UinputPath     string `json:"uinputPath"`
}
