// SPDX-License-Identifier: GPL-3.0-or-later

// Package factory composes the local worker pool, the socket pipeline, and
// the optional child-process pipelines into a single running node, and
// owns the per-interface transaction log used to survive restarts (spec.md
// §4.I, component I).
package factory

import (
	"runtime"
	"time"

	"github.com/igankevich/factory/logctx"
)

// Config holds the CLI-facing knobs named in spec.md §6, plus the ambient
// logctx.Config seam every constructor in this module accepts.
type Config struct {
	*logctx.Config

	// Fanout carries the `fanout` CLI flag (default 2, the same value
	// discovery.NewDiscoverer uses). Factory does not apply it: each
	// discoverer's Fanout is whatever the DiscovererFactory passed to
	// AddDiscoverer sets.
	Fanout int

	// AllowRoot carries the `allow-root` CLI flag. No component in this
	// module reads it.
	AllowRoot bool

	// ConnectionTimeout carries the `connection-timeout` CLI flag.
	// Factory does not apply it; redial pacing is set per client through
	// transport.Client.Backoff.
	ConnectionTimeout time.Duration

	// MaxConnectionAttempts carries the `max-connection-attempts` CLI
	// flag. Factory does not apply it; redial retries are bounded per
	// client by transport.Client.MaxAttempts.
	MaxConnectionAttempts int

	// NetworkScanInterval carries the `network-scan-interval` CLI flag
	// (default 30s, the same value discovery.NewDiscoverer uses). Factory
	// does not apply it: each discoverer's ScanInterval is whatever the
	// DiscovererFactory passed to AddDiscoverer sets.
	NetworkScanInterval time.Duration

	// NetworkInterfaceUpdateInterval is applied to
	// netmaster.Master.PollInterval by [Factory.AddDiscoverer] when
	// positive.
	NetworkInterfaceUpdateInterval time.Duration

	// TransactionsDirectory carries the `transactions-directory` CLI flag
	// (spec §6 "Persisted state"). New and Start do not read it: no
	// [TransactionLog] is opened or replayed from it automatically; logs
	// are opened with [OpenTransactionLog].
	TransactionsDirectory string

	// DrainPasses bounds Stop's shutdown drain loop (spec §5's shutdown
	// drain-pass contract).
	DrainPasses int

	// Workers sets the local pipeline's worker-pool size. Zero means
	// runtime.NumCPU().
	Workers int

	// PinWorkers locks each worker goroutine to its OS thread via
	// runtime.LockOSThread, for workloads sensitive to thread migration.
	PinWorkers bool
}

// NewConfig returns a [*Config] with the teacher's usual sensible
// defaults.
func NewConfig() *Config {
	return &Config{
		Config:                         logctx.NewConfig(),
		Fanout:                         2,
		ConnectionTimeout:              10 * time.Second,
		MaxConnectionAttempts:          3,
		NetworkScanInterval:            30 * time.Second,
		NetworkInterfaceUpdateInterval: 30 * time.Second,
		DrainPasses:                    13,
		Workers:                        runtime.NumCPU(),
	}
}
