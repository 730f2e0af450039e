package factory

import (
	"strings"

	"github.com/rvbbit/rvbbit/internal/background"
	"github.com/rvbbit/rvbbit/internal/background/chanqueue"
	"github.com/rvbbit/rvbbit/internal/background/kafkaqueue"
	"github.com/rvbbit/rvbbit/internal/config"
)

// newJobQueue builds the background.JobQueue selected by
// cfg.BackgroundQueue.
func newJobQueue(cfg *config.Config) (background.JobQueue, error) {
	if cfg.BackgroundQueue == "kafka" {
		return kafkaqueue.New(kafkaqueue.Config{
			Brokers: strings.Split(cfg.KafkaBrokers, ","),
			Topic:   cfg.KafkaTopic,
		}), nil
	}
	return chanqueue.New(256), nil
}
