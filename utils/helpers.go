package utils

// IsValidInterval reports whether interval names a ClickHouse toStartOf<Interval>
// function. It guards the interval before it is formatted into SQL.
func IsValidInterval(interval string) bool {
	switch interval {
	case "Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year":
		return true
	default:
		return false
	}
}
