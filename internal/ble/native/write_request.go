//go:build darwin || windows

package native

import "tinygo.org/x/bluetooth"

var _ requestWriter = (*bluetooth.DeviceCharacteristic)(nil)
