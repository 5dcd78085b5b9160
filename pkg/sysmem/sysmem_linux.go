//go:build linux

package sysmem

import "golang.org/x/sys/unix"

func available() (uint64, bool) {
	info := unix.Sysinfo_t{}
	if err := unix.Sysinfo(&info); err != nil {
		return 0, false
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return (uint64(info.Freeram) + uint64(info.Bufferram)) * unit, true
}
