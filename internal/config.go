package internal

import "time"

type Config struct {
	Host           string        `env:"HOST,required=true"`
	Port           int           `env:"PORT,required=true"`
	BadgerFilepath string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string        `env:"LOG_LEVEL,required=true"`
	HistoryLimit   int           `env:"HISTORY_LIMIT,default=50"`
	GCInterval     time.Duration `env:"GC_INTERVAL,default=5m"`
}
