package schema

import "time"

// Text layouts of stored date and datetime values.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02 15:04:05"
)

var datetimeLayouts = []string{DatetimeLayout, time.RFC3339Nano, time.RFC3339, DateLayout}

// FormatTime renders v, a time.Time or a string, in the stored text form of a
// date or datetime column. Datetimes are stored in UTC so that text order is
// time order; a string without an offset is taken as UTC already.
func FormatTime(t ColumnType, v interface{}) (string, bool) {
	switch t {
	case TypeDate:
		switch d := v.(type) {
		case time.Time:
			return d.Format(DateLayout), true
		case string:
			parsed, err := time.Parse(DateLayout, d)
			if err != nil {
				return "", false
			}
			return parsed.Format(DateLayout), true
		}
	case TypeDatetime:
		switch d := v.(type) {
		case time.Time:
			return d.UTC().Format(DatetimeLayout), true
		case string:
			for _, layout := range datetimeLayouts {
				if parsed, err := time.Parse(layout, d); err == nil {
					return parsed.UTC().Format(DatetimeLayout), true
				}
			}
		}
	}
	return "", false
}
