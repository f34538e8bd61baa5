// Package leader answers "am I the leader right now?" for the payment
// scheduler. Leadership is advisory: every storage step is still a
// conditional update, so a brief overlap of two leaders is harmless.
package leader

import (
	"context"
	"os"

	"github.com/google/uuid"
)

// Static is an elector with fixed leadership, for single-instance setups
// and tests.
type Static bool

// IsLeader returns the fixed value.
func (s Static) IsLeader(context.Context) (bool, error) {
	return bool(s), nil
}

// Identity returns a process identity: the hostname with a random suffix,
// so two processes on one host do not share a lease.
func Identity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()[:8]
}
