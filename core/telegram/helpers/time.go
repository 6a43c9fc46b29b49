package helpers

import "time"

// DisplayLayout is how dates are shown to users.
const DisplayLayout = "02-01-2006 15:04"

// FormatUnix renders a unix timestamp in loc, or "-" when ts is zero.
func FormatUnix(ts int64, loc *time.Location) string {
	if ts <= 0 {
		return "-"
	}
	return FormatTime(time.Unix(ts, 0), loc)
}

// FormatTime renders t in loc, or "-" for the zero time.
func FormatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DisplayLayout)
}
