package model

import "fmt"

// ZoneInfo describes a physical irrigation zone.
type ZoneInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Zones is the fixed set of irrigation zones this installation controls.
var Zones = map[int]ZoneInfo{
	1: {ID: 1, Name: "Orchard A", Type: "orchard", Description: "Apple trees section"},
	2: {ID: 2, Name: "Orchard B", Type: "orchard", Description: "Pear trees section"},
	3: {ID: 3, Name: "Orchard C", Type: "orchard", Description: "Cherry trees section"},
	4: {ID: 4, Name: "Orchard D", Type: "orchard", Description: "Mixed fruit section"},
	5: {ID: 5, Name: "Potato Field", Type: "potato", Description: "Main potato cultivation"},
}

const (
	// MaxRunMinutes is the longest single run a request may ask for.
	MaxRunMinutes = 120
	// DefaultDailyCapMinutes caps per-zone irrigation per UTC day.
	DefaultDailyCapMinutes = 120
	// DefaultSaturationThreshold blocks irrigation when soil moisture (%) is above it.
	DefaultSaturationThreshold = 85.0
)

func ValidZone(id int) bool {
	_, ok := Zones[id]
	return ok
}

// ValidZoneIDs returns the configured zone ids in ascending order.
func ValidZoneIDs() []int {
	ids := make([]int, 0, len(Zones))
	for id := 1; id <= len(Zones); id++ {
		if _, ok := Zones[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func ZoneName(id int) string {
	if z, ok := Zones[id]; ok {
		return z.Name
	}
	return fmt.Sprintf("Zone %d", id)
}

// ZoneSensorID maps a zone to the moisture sensor planted in it (zone 1 -> "V1").
func ZoneSensorID(id int) string {
	return fmt.Sprintf("V%d", id)
}
