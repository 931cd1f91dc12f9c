package dhcp

import (
	"fmt"
	"time"
)

// LeaseTime is a lease duration in whole seconds as carried in options 51,
// 58 and 59. The all-ones wire value means the lease never expires.
type LeaseTime uint32

// InfiniteLease is the RFC 2132 "lease does not expire" value.
const InfiniteLease LeaseTime = 0xffffffff

// Seconds builds a LeaseTime from a second count.
func Seconds(secs uint32) LeaseTime {
	return LeaseTime(secs)
}

// IsInfinite reports whether the lease never expires.
func (t LeaseTime) IsInfinite() bool {
	return t == InfiniteLease
}

// Duration converts a finite lease time to a time.Duration. Infinite lease
// times have no duration; callers check IsInfinite first.
func (t LeaseTime) Duration() time.Duration {
	return time.Duration(t) * time.Second
}

func (t LeaseTime) String() string {
	if t.IsInfinite() {
		return "infinite"
	}
	return fmt.Sprintf("%ds", uint32(t))
}
