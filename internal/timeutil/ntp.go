package timeutil

import "time"

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01T00:00:00Z) and the Unix epoch.
const ntpEpochOffset = 2208988800

// NTPTime converts t to NTP (seconds, fractions): whole seconds since
// 1900-01-01 UTC and the sub-second remainder scaled by 2^32. Seconds wrap
// in 2036 as the 32-bit NTP era does.
func NTPTime(t time.Time) (seconds, fractions uint32) {
	secs := t.Unix() + ntpEpochOffset
	nanos := uint64(t.Nanosecond())
	return uint32(secs), uint32((nanos << 32) / uint64(time.Second))
}

// FromNTP converts an NTP (seconds, fractions) pair in the current era back
// to a UTC time, rounding the fraction down to the nanosecond.
func FromNTP(seconds, fractions uint32) time.Time {
	nanos := (uint64(fractions) * uint64(time.Second)) >> 32
	return time.Unix(int64(seconds)-ntpEpochOffset, int64(nanos)).UTC()
}
