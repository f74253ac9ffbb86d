// SPDX-License-Identifier: GPL-3.0-or-later

package logctx

import "github.com/google/uuid"

// NewSpanID returns a UUIDv7 identifying a span: a connection lifecycle, a
// discovery round, or a single kernel's journey from submission to its
// final result.
//
// Callers attach span IDs to their own log lines; the transport, proto
// and discovery packages do not emit span IDs themselves.
//
// This function panics if the system random number generator fails, which
// should only happen under extraordinary circumstances.
func NewSpanID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return id.String()
}
