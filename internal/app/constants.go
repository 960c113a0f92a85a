package app

const (
	Name = "machinecfg"
	// SettingsReferenceURL documents every GRBL $ setting.
	SettingsReferenceURL = "https://github.com/gnea/grbl/wiki/Grbl-v1.1-Configuration"
	ConfigFilename       = "config.toml"
	DBFilename           = "journal.db"
	LogFilename          = "machinecfg.log"
	// HistoryLimit is how many journal entries the history views show.
	HistoryLimit = 50
	// HistoryRetention is how many journal entries survive the startup prune.
	HistoryRetention = 1000
)
