package worker

import (
	"context"
	"log"
	"time"
)

// AccountTester is the part of the email account service the monitor needs.
type AccountTester interface {
	TestActive(ctx context.Context) (tested, failed int, err error)
}

// AccountMonitor periodically re-tests the connection of every active email
// account so that verification state stays current.
type AccountMonitor struct {
	accounts AccountTester
	interval time.Duration
	logger   *log.Logger
}

const defaultMonitorInterval = time.Hour

func NewAccountMonitor(accounts AccountTester, interval time.Duration, logger *log.Logger) *AccountMonitor {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	return &AccountMonitor{
		accounts: accounts,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks until ctx is cancelled.
func (am *AccountMonitor) Start(ctx context.Context) {
	am.logger.Println("Starting account monitor...")
	ticker := time.NewTicker(am.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			am.RunOnce(ctx)
		case <-ctx.Done():
			am.logger.Println("Stopping account monitor...")
			return
		}
	}
}

// RunOnce tests all active accounts once.
func (am *AccountMonitor) RunOnce(ctx context.Context) {
	start := time.Now()
	tested, failed, err := am.accounts.TestActive(ctx)
	if err != nil {
		am.logger.Printf("Account check stopped after %d accounts: %v", tested, err)
		return
	}
	am.logger.Printf("Checked %d accounts (%d failing) in %s", tested, failed, time.Since(start).Round(time.Millisecond))
}
