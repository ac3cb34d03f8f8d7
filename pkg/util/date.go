package util

import (
    "strconv"
    "time"
)

// IST is the exchange timezone (UTC+05:30). The NSE publishes no DST rules,
// so a fixed zone is sufficient.
var IST = time.FixedZone("IST", 5*3600+30*60)

// Market session boundaries, IST wall clock.
const (
    MarketOpenHour    = 9
    MarketOpenMinute  = 15
    MarketCloseHour   = 15
    MarketCloseMinute = 30
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.RFC3339, s); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return t, true
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return time.Unix(ts, 0), true
    }
    return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
    if t, ok := ParseTime(s); ok {
        return t
    }
    return def
}

// ISTDate returns the IST calendar date of t as YYYY-MM-DD.
func ISTDate(t time.Time) string {
    return t.In(IST).Format("2006-01-02")
}

// SameISTDate reports whether a and b fall on the same IST calendar date.
func SameISTDate(a, b time.Time) bool {
    ay, am, ad := a.In(IST).Date()
    by, bm, bd := b.In(IST).Date()
    return ay == by && am == bm && ad == bd
}

// MarketOpenAt returns the 09:15 IST market-open instant for t's IST date, in UTC.
func MarketOpenAt(t time.Time) time.Time {
    ist := t.In(IST)
    open := time.Date(ist.Year(), ist.Month(), ist.Day(), MarketOpenHour, MarketOpenMinute, 0, 0, IST)
    return open.UTC()
}

// IsMarketHours reports whether t is a weekday between 09:15 and 15:30 IST inclusive.
func IsMarketHours(t time.Time) bool {
    ist := t.In(IST)
    if wd := ist.Weekday(); wd == time.Saturday || wd == time.Sunday {
        return false
    }
    mins := ist.Hour()*60 + ist.Minute()
    return mins >= MarketOpenHour*60+MarketOpenMinute && mins <= MarketCloseHour*60+MarketCloseMinute
}

// IsWeekend reports whether t falls on an IST Saturday or Sunday.
func IsWeekend(t time.Time) bool {
    wd := t.In(IST).Weekday()
    return wd == time.Saturday || wd == time.Sunday
}

// WeeklyExpiry returns the current/next Tuesday expiry date in YYYY-MM-DD.
// On a Tuesday the same date is returned; the post-close cutover is handled
// upstream by the exchange rejecting an expired date.
func WeeklyExpiry(t time.Time) string {
    ist := t.In(IST)
    days := (int(time.Tuesday) - int(ist.Weekday()) + 7) % 7
    return ist.AddDate(0, 0, days).Format("2006-01-02")
}

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
    if s == "" {
        return def
    }
    v, err := strconv.Atoi(s)
    if err != nil {
        return def
    }
    return v
}
