package main

import "time"

type Config struct {
	// RELAY_URL is optional on purpose: without it the widget falls back to
	// the degraded local-store mode.
	RelayURL          string        `env:"RELAY_URL"`
	DisplayName       string        `env:"DISPLAY_NAME"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,default=WARN"`
	HistoryLimit      int           `env:"HISTORY_LIMIT,default=50"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=10s"`
	StalenessWindow   time.Duration `env:"STALENESS_WINDOW,default=60s"`
	RedialInterval    time.Duration `env:"REDIAL_INTERVAL,default=2s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	AnnounceLeave     bool          `env:"ANNOUNCE_LEAVE_DEGRADED,default=false"`
}
