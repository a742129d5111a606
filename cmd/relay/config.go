package main

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Host           string `envconfig:"RELAY_HOST" default:"0.0.0.0"`
	Port           int    `envconfig:"RELAY_PORT" default:"8080"`
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	// HISTORY_LIMIT caps how many events a single /history call may return
	HistoryLimit int    `envconfig:"HISTORY_LIMIT" default:"50"`
	BufferSize   int    `envconfig:"BUFFER_SIZE" default:"64"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"INFO"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
