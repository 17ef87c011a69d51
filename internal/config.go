// Package internal holds cross-cutting helpers for the binaries:
// configuration parsing and logger construction.
package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host string `env:"HOST,default=localhost"`
	Port int    `env:"PORT,default=8080"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,required=true"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`

	IndexQueueSize     int           `env:"INDEX_QUEUE_SIZE,required=true"`
	IndexBatchSize     int           `env:"INDEX_BATCH_SIZE,required=true"`
	IndexFlushInterval time.Duration `env:"INDEX_FLUSH_INTERVAL,required=true"`
	SearchLimit        int           `env:"SEARCH_LIMIT,default=50"`

	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`
	LowCapacityThreshold float64       `env:"LOW_CAPACITY_THRESHOLD,default=0.1"`

	CharReplacement string `env:"CHARACTER_REPLACEMENT,required=true"`
}

// CharacterRune enforces that the censor replacement is exactly one rune.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
