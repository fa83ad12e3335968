package deskmirror

import "strconv"

// CompareTS compares two ts strings of the form "seconds.microseconds" as
// numeric tuples, per spec.md §3: lexicographic comparison alone is only
// correct once both halves are zero-padded to fixed width, which upstream
// timestamps are not guaranteed to be, so this always parses numerically.
// Returns -1, 0, or 1. An unparsable half compares as 0 (treated as "0").
func CompareTS(a, b string) int {
	as, au := splitTS(a)
	bs, bu := splitTS(b)
	if as != bs {
		if as < bs {
			return -1
		}
		return 1
	}
	if au != bu {
		if au < bu {
			return -1
		}
		return 1
	}
	return 0
}

// TSGreater reports whether a is strictly newer than b — the "newer than
// cursor" test used throughout SyncWorker and Scheduler.
func TSGreater(a, b string) bool { return CompareTS(a, b) > 0 }

// MaxTS returns the numerically larger of two ts strings.
func MaxTS(a, b string) string {
	if TSGreater(a, b) {
		return a
	}
	return b
}

func splitTS(ts string) (seconds, micros int64) {
	for i := 0; i < len(ts); i++ {
		if ts[i] == '.' {
			s, _ := strconv.ParseInt(ts[:i], 10, 64)
			u, _ := strconv.ParseInt(ts[i+1:], 10, 64)
			return s, u
		}
	}
	s, _ := strconv.ParseInt(ts, 10, 64)
	return s, 0
}
