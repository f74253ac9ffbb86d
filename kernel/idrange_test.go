// SPDX-License-Identifier: GPL-3.0-or-later

package kernel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/igankevich/factory/kernel"
)

func TestIDRangeNeverIssuesZero(t *testing.T) {
	r := kernel.NewIDRange(0, 4)
	seen := map[uint64]bool{}
	for i := 0; i < 10; i++ {
		id := r.Next()
		require.NotZero(t, id)
		seen[id] = true
	}
	require.Subset(t, []uint64{1, 2, 3}, keys(seen))
}

func TestIDRangeWraps(t *testing.T) {
	r := kernel.NewIDRange(10, 13)
	var got []uint64
	for i := 0; i < 6; i++ {
		got = append(got, r.Next())
	}
	require.Equal(t, []uint64{10, 11, 12, 10, 11, 12}, got)
}

func TestIDRangesAreDisjointAcrossPipelines(t *testing.T) {
	a := kernel.NewIDRange(0, 100)
	b := kernel.NewIDRange(100, 200)
	idsA := map[uint64]bool{}
	for i := 0; i < 50; i++ {
		idsA[a.Next()] = true
	}
	for i := 0; i < 50; i++ {
		id := b.Next()
		require.False(t, idsA[id])
	}
}

func keys(m map[uint64]bool) []uint64 {
	out := make([]uint64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
