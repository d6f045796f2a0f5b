//go:build !linux

package firewall

import (
	"fmt"

	"grimm.is/blockd/internal/clock"
)

func newNativeDefault(Table, clock.Clock) (Adapter, error) {
	return nil, fmt.Errorf("%w: native backend requires linux", ErrUnknownBackend)
}
