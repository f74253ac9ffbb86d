// SPDX-License-Identifier: GPL-3.0-or-later

package factory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/igankevich/factory/factory"
	"github.com/igankevich/factory/kernel"
	"github.com/igankevich/factory/wire"
)

func TestTransactionLogAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	log, err := factory.OpenTransactionLog(dir, "eth0")
	require.NoError(t, err)

	k1 := kernel.New()
	k1.SetID(1)
	k1.Parent = kernel.IDRef(9)
	k2 := kernel.New()
	k2.SetID(2)
	k2.Parent = kernel.IDRef(9)

	require.NoError(t, log.Append(k1))
	require.NoError(t, log.Append(k2))
	require.NoError(t, log.Close())

	log, err = factory.OpenTransactionLog(dir, "eth0")
	require.NoError(t, err)
	defer log.Close()

	router := &recordingRouter{}
	require.NoError(t, log.Replay(wire.NewTypeRegistry(), router))

	require.Len(t, router.upped, 2)
	require.Equal(t, uint64(1), router.upped[0].ID())
	require.Equal(t, uint64(2), router.upped[1].ID())
}
