// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import "time"

func deadlineFromUnixNano(nanos uint64) time.Time {
	return time.Unix(0, int64(nanos)).UTC()
}
