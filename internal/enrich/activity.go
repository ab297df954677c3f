package enrich

import "time"

// ActivityShortNames maps source activity labels to display names
var ActivityShortNames = map[string]string{
	"Ride":             "Road",
	"VirtualRide":      "Virtual",
	"GravelRide":       "Gravel",
	"MountainBikeRide": "MTB",
	"EBikeRide":        "E-Bike",
	"Run":              "Run",
	"TrailRun":         "Trail",
	"Walk":             "Walk",
	"Hike":             "Hike",
	"NordicSki":        "Ski",
	"BackcountrySki":   "SkiBC",
	"AlpineSki":        "SkiAlp",
	"InlineSkate":      "Skate",
}

// ShortActivity normalizes a source activity label.
// Unknown labels pass through; an empty label becomes "Other".
func ShortActivity(label string) string {
	if short, ok := ActivityShortNames[label]; ok {
		return short
	}
	if label == "" {
		return "Other"
	}
	return label
}

// LocalDate formats t as a calendar date in loc, or "" when t is absent
func LocalDate(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(time.DateOnly)
}
