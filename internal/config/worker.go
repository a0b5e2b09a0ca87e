package config

import (
	"time"

	"github.com/spf13/viper"
)

type WorkerConfig struct {
	Stream          string
	Group           string
	Consumer        string
	ClaimInterval   time.Duration
	MaxDeliveries   int64
	CleanupSchedule string
	LogLevel        string
}

func setWorkerDefaults(v *viper.Viper) {
	v.SetDefault("worker.stream", "tasks:background")
	v.SetDefault("worker.group", "taskhub-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "30s")
	v.SetDefault("worker.maxdeliveries", 5)
	v.SetDefault("worker.cleanupschedule", "0 0 0 * * *")
	v.SetDefault("worker.loglevel", "info")
}
