package todo

import (
	"sync"

	"remindbot/internal/core"
	"remindbot/internal/settings"
)

// Setting IDs resolved through the settings resolver. Every value is a
// string: overrides come from the plugin config block, defaults are the
// packaged values below.
const (
	settingNotifyAtHours  = "notifyAtHours"
	settingTimeZone       = "notificationTimeZone"
	settingNotifyInterval = "notifyInterval"

	defaultNotifyAtHours  = "10,16"
	defaultTimeZone       = "America/New_York"
	defaultNotifyInterval = "1h"

	notifyJobName = "notify"
)

// Config is the per-plugin block from the bot config file. Empty fields fall
// back to the packaged setting defaults.
type Config struct {
	NotifyAtHours        string `json:"notify_at_hours"`
	NotificationTimeZone string `json:"notification_time_zone"`
	NotifyInterval       string `json:"notify_interval"`
}

type Plugin struct {
	core.PluginBase

	mu       sync.RWMutex
	cfg      Config
	resolver *settings.Resolver
	started  bool
}

// source exposes the current config block as a settings source. A present but
// empty field does not override the packaged default.
func (c Config) source() settings.Source {
	return settings.StaticSource{
		settingNotifyAtHours:  c.NotifyAtHours,
		settingTimeZone:       c.NotificationTimeZone,
		settingNotifyInterval: c.NotifyInterval,
	}
}

func definitions() []settings.Definition {
	return []settings.Definition{
		{ID: settingNotifyAtHours, PackageValue: defaultNotifyAtHours, Description: "comma-separated hours (in the notification time zone) at which reminders fire"},
		{ID: settingTimeZone, PackageValue: defaultTimeZone, Description: "IANA time zone used for hour matching"},
		{ID: settingNotifyInterval, PackageValue: defaultNotifyInterval, Description: "schedule for the notify job: cron, HH:MM or a Go duration"},
	}
}

var _ core.ConfigurablePlugin = (*Plugin)(nil)
