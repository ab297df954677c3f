package strava

import "time"

// Activity represents a Strava activity from the API
type Activity struct {
	ID                 int64     `json:"id"`
	Athlete            Athlete   `json:"athlete"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone"`
	Distance           float64   `json:"distance"`             // meters
	MovingTime         int       `json:"moving_time"`          // seconds
	ElapsedTime        int       `json:"elapsed_time"`         // seconds
	TotalElevationGain float64   `json:"total_elevation_gain"` // meters
	Manual             bool      `json:"manual"`
	Trainer            bool      `json:"trainer"`
}

// Athlete represents a Strava athlete (minimal info in activity response)
type Athlete struct {
	ID int64 `json:"id"`
}

// Kind returns the most specific activity label: sport_type when set
// (TrailRun, GravelRide, ...), otherwise the legacy type.
func (a Activity) Kind() string {
	if a.SportType != "" {
		return a.SportType
	}
	return a.Type
}

// Recorded reports whether the activity came from a GPS device. Manual
// entries and trainer sessions have no position stream.
func (a Activity) Recorded() bool {
	return !a.Manual && !a.Trainer
}

// Streams represents activity stream data from the API
// Strava returns streams keyed by type when key_by_type=true
type Streams struct {
	Time           *StreamData[int]        `json:"time"`
	LatLng         *StreamData[[2]float64] `json:"latlng"`
	Altitude       *StreamData[float64]    `json:"altitude"`
	VelocitySmooth *StreamData[float64]    `json:"velocity_smooth"` // m/s
	Distance       *StreamData[float64]    `json:"distance"`        // cumulative meters
}

// StreamData represents a single stream type
type StreamData[T any] struct {
	Data         []T    `json:"data"`
	SeriesType   string `json:"series_type"`
	OriginalSize int    `json:"original_size"`
	Resolution   string `json:"resolution"`
}

// At returns the i-th sample and whether it exists
func (s *StreamData[T]) At(i int) (T, bool) {
	var zero T
	if s == nil || i < 0 || i >= len(s.Data) {
		return zero, false
	}
	return s.Data[i], true
}

// Len returns the length of the stream, or 0 if nil
func (s *Streams) Len() int {
	if s == nil || s.Time == nil {
		return 0
	}
	return len(s.Time.Data)
}

// HasGPS returns true if position data exists
func (s *Streams) HasGPS() bool {
	return s != nil && s.LatLng != nil && len(s.LatLng.Data) > 0
}
