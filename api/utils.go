package api

import (
	"sync/atomic"
	"time"
)

var lastTimestamp int64

// nextTimestamp issues strictly increasing nanosecond timestamps so queued
// commands carry a total order even when submitted in the same instant.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}
