package instance

import (
	"fmt"
	"os"

	"github.com/angelmondragon/restock-pipeline/pkg/env"
)

// GetID returns the worker instance identifier used as the lock owner.
// RESTOCK_INSTANCE_ID wins, then WORKER_ID, then hostname-pid.
func GetID() string {
	if id := env.FirstOf("", "RESTOCK_INSTANCE_ID", "WORKER_ID"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
