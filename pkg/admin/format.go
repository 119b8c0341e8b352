package admin

import (
	"strings"
	"time"
	_ "time/tzdata"
)

// DATE_TIME_LAYOUT is the es-MX short date with a 12 hour clock. The meridiem
// is rewritten to "a.m."/"p.m." by FormatDateTime.
const DATE_TIME_LAYOUT = "02/01/2006, 03:04 PM"

var meridiem = strings.NewReplacer("AM", "a.m.", "PM", "p.m.")

// mexicoFallback is used when the tz database has no entry for the zone.
var mexicoFallback = time.FixedZone("CST", -6*60*60)

func LoadLocation(name string) *time.Location {
	if name == "" {
		return mexicoFallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return mexicoFallback
	}
	return loc
}

// FormatDateTime renders a registration timestamp for the admin table.
// Records without a timestamp render as an empty cell.
func FormatDateTime(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = mexicoFallback
	}
	return meridiem.Replace(t.In(loc).Format(DATE_TIME_LAYOUT))
}
