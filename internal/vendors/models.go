package vendors

import (
	"sfex/internal/constants"
	"sfex/internal/rules"
)

// Profile is one vendor's complete onboarding record: how its files are
// transported, decoded and validated, and who hears about problems.
type Profile struct {
	ID     string `mapstructure:"id"`
	Name   string `mapstructure:"name"`
	Active bool   `mapstructure:"active"`

	File         FileSettings         `mapstructure:"file"`
	SFTP         SFTPSettings         `mapstructure:"sftp"`
	Notification NotificationSettings `mapstructure:"notification"`

	Rules []rules.Config `mapstructure:"rules"`
}

type FileSettings struct {
	Format         string `mapstructure:"format"`
	Delimiter      string `mapstructure:"delimiter"`
	FieldSeparator string `mapstructure:"field_separator"`
	KVSeparator    string `mapstructure:"kv_separator"`
	Encrypted      bool   `mapstructure:"encrypted"`
}

type SFTPSettings struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	User                string `mapstructure:"user"`
	Password            string `mapstructure:"password"`
	PrivateKeyPath      string `mapstructure:"private_key_path"`
	RemoteDirectory     string `mapstructure:"remote_directory"`
	FilePattern         string `mapstructure:"file_pattern"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	DeleteAfterDownload bool   `mapstructure:"delete_after_download"`
}

type NotificationSettings struct {
	Emails  []string `mapstructure:"emails"`
	Subject string   `mapstructure:"subject"`
}

// PollEnabled reports whether the ingestion worker should poll this
// vendor's drop point.
func (p Profile) PollEnabled() bool {
	return p.Active && p.SFTP.Host != ""
}

func (p Profile) PollIntervalSeconds() int {
	if p.SFTP.PollIntervalSeconds > 0 {
		return p.SFTP.PollIntervalSeconds
	}
	return constants.DefaultPollIntervalSeconds
}
