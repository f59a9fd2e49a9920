package state

import (
	"runtime"
	"strconv"
	"strings"
)

// goroutineID returns the id of the calling goroutine, parsed from the
// "goroutine 123 [running]:" header of its stack trace.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(fields[1], 10, 64)
	return id
}
