// SPDX-License-Identifier: GPL-3.0-or-later

package factory

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/igankevich/factory/kernel"
	"github.com/igankevich/factory/proto"
	"github.com/igankevich/factory/wire"
)

// TransactionLog is a per-interface append-only log of kernels (spec §6
// "Persisted state"): kernels recorded with Append can be replayed with
// Replay after a restart instead of being lost when the process (not just
// the connection) goes away. Neither proto.Engine nor Factory calls
// Append; only the kernels a caller passes to it are logged.
type TransactionLog struct {
	mu   sync.Mutex
	file *os.File
	w    *wire.Writer
}

// OpenTransactionLog opens (creating if needed) the log file for
// interface name under dir.
func OpenTransactionLog(dir, name string) (*TransactionLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, name+".log"), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &TransactionLog{file: f, w: wire.NewWriter(f)}, nil
}

// Append records k as a framed kernel_frame packet, reusing
// wire.EncodeKernel directly rather than inventing a second codec for the
// log file.
func (t *TransactionLog) Append(k *kernel.Kernel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.w.BeginPacket()
	if err := wire.EncodeKernel(g, k); err != nil {
		g.Fail(err)
		return g.Commit()
	}
	return g.Commit()
}

// Close closes the underlying file.
func (t *TransactionLog) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

// Replay reads every logged kernel and hands it to router.RouteUpstream,
// reproducing what engine.RecoverKernels(true) would have done had the
// connection survived instead of the whole process restarting.
func (t *TransactionLog) Replay(types *wire.TypeRegistry, router proto.Router) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r := wire.NewReader(bufio.NewReader(t.file))
	for {
		body, err := r.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		k, err := wire.DecodeKernel(body, types)
		if err != nil {
			continue
		}
		if err := router.RouteUpstream(k); err != nil {
			return err
		}
	}
	_, err := t.file.Seek(0, io.SeekEnd)
	return err
}
