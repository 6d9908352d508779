package eval

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// DateTime values are stored as nanoseconds since the Unix epoch (matching
// internal/value.Value's KindDateTime), which covers years roughly
// 1678-2262. Calendars with a 5-or-more digit year fall outside that range
// and are handled with math/big.Int arithmetic instead (spec §4.12) — the
// one evaluator component built on the standard library alone, since none
// of the example repos pull in a civil-calendar/arbitrary-precision-date
// library and big.Int already ships what's needed (see DESIGN.md).

const nsPerDay = int64(24 * time.Hour)

func formatDateTime(nanos int64) string {
	return time.Unix(0, nanos).UTC().Format(time.RFC3339Nano)
}

func formatDuration(v Value) string {
	var b strings.Builder
	b.WriteByte('P')
	if v.Months != 0 {
		years := v.Months / 12
		months := v.Months % 12
		if years != 0 {
			fmt.Fprintf(&b, "%dY", years)
		}
		if months != 0 {
			fmt.Fprintf(&b, "%dM", months)
		}
	}
	if v.Days != 0 {
		fmt.Fprintf(&b, "%dD", v.Days)
	}
	if v.Nanos != 0 {
		b.WriteByte('T')
		secs := v.Nanos / int64(time.Second)
		fmt.Fprintf(&b, "%gS", float64(secs)+float64(v.Nanos%int64(time.Second))/1e9)
	}
	return b.String()
}

// isLargeYear reports whether a 4-digit calendar representation cannot
// hold year, i.e. it needs the big.Int path.
func isLargeYear(year int64) bool {
	return year >= 10000 || year <= -10000
}

// parseDateTime parses an ISO-8601-ish "YYYY-MM-DDTHH:MM:SS[.fff][Z]"
// string. Years of 5+ digits (optionally signed with '+'/'-') produce a
// Value carrying a big.Int-derived day offset packed into I (days since
// epoch, not nanoseconds), tagged via the sentinel Months field set to
// largeYearEpochDays so AddDuration and DurationBetween take their
// day-count path instead of the fast nanosecond path.
func parseDateTime(s string) (Value, error) {
	s = strings.TrimSpace(s)
	neg := false
	rest := s
	if strings.HasPrefix(rest, "+") || strings.HasPrefix(rest, "-") {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	dash := strings.IndexByte(rest, '-')
	if dash < 0 {
		return Null, fmt.Errorf("eval: invalid datetime %q", s)
	}
	yearStr := rest[:dash]
	year, err := strconv.ParseInt(yearStr, 10, 64)
	if err != nil {
		return Null, fmt.Errorf("eval: invalid datetime year %q", s)
	}
	if neg {
		year = -year
	}
	if isLargeYear(year) {
		return parseLargeYearDateTime(year, rest[dash+1:])
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", s)
	}
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
	}
	if err != nil {
		return Null, fmt.Errorf("eval: invalid datetime %q: %w", s, err)
	}
	return DateTime(t.UnixNano()), nil
}

// largeYearEpochDays is the sentinel Months value marking a Value whose I
// field holds whole days-since-epoch (via big.Int arithmetic) rather than
// nanoseconds.
const largeYearEpochDays = 1 << 30

func parseLargeYearDateTime(year int64, rest string) (Value, error) {
	parts := strings.SplitN(rest, "-", 2)
	if len(parts) != 2 {
		return Null, fmt.Errorf("eval: invalid large-year datetime")
	}
	month, err1 := strconv.Atoi(parts[0])
	day, err2 := strconv.Atoi(strings.SplitN(parts[1], "T", 2)[0])
	if err1 != nil || err2 != nil {
		return Null, fmt.Errorf("eval: invalid large-year datetime")
	}
	days := civilDaysFromEpoch(big.NewInt(year), month, day)
	v := DateTime(0)
	v.I = days.Int64()
	v.Months = largeYearEpochDays
	return v, nil
}

func (v Value) isLargeYearDateTime() bool {
	return v.Kind == KindDateTime && v.Months == largeYearEpochDays
}

// civilDaysFromEpoch converts a proleptic Gregorian (year, month, day) into
// a day count relative to 1970-01-01, using Howard Hinnant's
// days_from_civil algorithm extended to big.Int so arbitrarily large years
// do not overflow int64.
func civilDaysFromEpoch(year *big.Int, month, day int) *big.Int {
	y := new(big.Int).Set(year)
	if month <= 2 {
		y.Sub(y, big.NewInt(1))
	}
	era := new(big.Int)
	era.Div(y, big.NewInt(400)) // Euclidean division: already floors for negative y
	yoe := new(big.Int).Sub(y, new(big.Int).Mul(era, big.NewInt(400)))
	mp := (month + 9) % 12
	doy := big.NewInt(int64((153*mp+2)/5 + day - 1))
	yoeTerm := new(big.Int).Mul(yoe, big.NewInt(365))
	yoeTerm.Add(yoeTerm, new(big.Int).Div(yoe, big.NewInt(4)))
	yoeTerm.Sub(yoeTerm, new(big.Int).Div(yoe, big.NewInt(100)))
	doe := new(big.Int).Add(yoeTerm, doy)
	total := new(big.Int).Mul(era, big.NewInt(146097))
	total.Add(total, doe)
	return total.Sub(total, big.NewInt(719468))
}

// AddDuration adds a duration to a DateTime value, routing through the
// big.Int day-count path when dt was produced by a large-year parse.
func AddDuration(dt, dur Value) (Value, error) {
	if dt.Kind != KindDateTime {
		return Null, fmt.Errorf("eval: duration arithmetic requires DateTime, got %s", dt.TypeName())
	}
	if dur.Kind != KindDuration {
		return Null, fmt.Errorf("eval: expected Duration, got %s", dur.TypeName())
	}
	if dt.isLargeYearDateTime() {
		days := big.NewInt(dt.I)
		days.Add(days, big.NewInt(dur.Days+dur.Months*30))
		v := DateTime(0)
		v.I = days.Int64()
		v.Months = largeYearEpochDays
		return v, nil
	}
	t := time.Unix(0, dt.I).UTC()
	t = t.AddDate(0, int(dur.Months), int(dur.Days))
	t = t.Add(time.Duration(dur.Nanos))
	return DateTime(t.UnixNano()), nil
}

// DurationBetween computes an inSeconds-style duration between two
// DateTime values.
func DurationBetween(a, b Value) (Value, error) {
	if a.Kind != KindDateTime || b.Kind != KindDateTime {
		return Null, fmt.Errorf("eval: duration.between requires two DateTime values")
	}
	if a.isLargeYearDateTime() || b.isLargeYearDateTime() {
		da, db := big.NewInt(a.I), big.NewInt(b.I)
		diff := new(big.Int).Sub(db, da)
		return Duration(0, diff.Int64(), 0), nil
	}
	delta := b.I - a.I
	return Duration(0, 0, delta), nil
}

// TruncateDateTime truncates a DateTime to the given unit (year/month/day/
// hour/minute/second).
func TruncateDateTime(dt Value, unit string) (Value, error) {
	if dt.Kind != KindDateTime || dt.isLargeYearDateTime() {
		return Null, fmt.Errorf("eval: truncate requires an in-range DateTime")
	}
	t := time.Unix(0, dt.I).UTC()
	switch unit {
	case "year":
		t = time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	case "month":
		t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "day":
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case "hour":
		t = t.Truncate(time.Hour)
	case "minute":
		t = t.Truncate(time.Minute)
	case "second":
		t = t.Truncate(time.Second)
	default:
		return Null, fmt.Errorf("eval: unknown truncation unit %q", unit)
	}
	return DateTime(t.UnixNano()), nil
}
