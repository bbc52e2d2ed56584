package models

import (
	"net/url"
	"strings"
)

// Category selects which frequency dataset a request asks for
type Category string

const (
	CategoryZone    Category = "zone"
	CategoryBus     Category = "bus"
	CategoryRail    Category = "rail"
	CategoryTransit Category = "transit"
)

// Categories lists every category the dispatcher serves
var Categories = []Category{CategoryZone, CategoryBus, CategoryRail, CategoryTransit}

// ParseCategory scans the raw query string in order and returns the first
// parameter name that is a category, so ?rail&bus selects rail.
// Flags are bare (?zone) but ?zone= and ?zone=1 are accepted too.
func ParseCategory(rawQuery string) (Category, bool) {
	for _, param := range strings.Split(rawQuery, "&") {
		name, _, _ := strings.Cut(param, "=")
		name, err := url.QueryUnescape(name)
		if err != nil {
			continue
		}
		for _, c := range Categories {
			if name == string(c) {
				return c, true
			}
		}
	}
	return "", false
}

// ZoneFrequency represents one zone's frequency-change scenarios.
// v* columns come from f_zonev, t* columns from f_zonet.
type ZoneFrequency struct {
	VBase    float64 `db:"basescen" json:"vBase"`
	VDouble  float64 `db:"x2tfreqsc" json:"vDouble"`
	VActual  float64 `db:"changevact" json:"vActual"`
	VPercent float64 `db:"percchange" json:"vPercent"`
	TBase    float64 `db:"basescen" json:"tBase"`
	TDouble  float64 `db:"x2tfreqsc" json:"tDouble"`
	TActual  float64 `db:"changetact" json:"tActual"`
	TPercent float64 `db:"percchange" json:"tPercent"`
}

// BusLine represents a bus line's ridership change from f_bus.
// LineName is nil when the source row has no line name.
type BusLine struct {
	LineName  *string `db:"linename" json:"linename"`
	AbsChange float64 `db:"changeride" json:"AbsChange"`
	Percent   float64 `db:"percchange" json:"Percent"`
}

// RailLine represents a rail line's ridership change from f_rail
type RailLine struct {
	Absolute float64 `db:"changeride" json:"absolute"`
	Percent  float64 `db:"percchange" json:"percent"`
}

// TransitLine represents existing service frequency from f_existing
type TransitLine struct {
	AMPeak  float64 `db:"ampeakfreq" json:"am"`
	AvgFreq float64 `db:"avg_freq" json:"avg_freq"`
}

// MessageResponse is the body returned when a loader produces no dataset
type MessageResponse struct {
	Message string `json:"message"`
}

// StatusResponse is the body returned when no category could be selected
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const (
	MessageInvalidQuery = "Invalid query parameters"
	MessageNoResults    = "No results"
	MessageBadCategory  = "something went wrong."
	StatusFailed        = "failed"
)
