package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Attribute names a recoded categorical accident attribute.
type Attribute string

const (
	AttrRoadClass Attribute = "road_class"
	AttrSeverity  Attribute = "severity"
	AttrHazards   Attribute = "hazards"
	AttrJunction  Attribute = "junction"
	AttrDark      Attribute = "dark"
	AttrVehicles  Attribute = "vehicles"
	AttrWet       Attribute = "wet"
	AttrRoadType  Attribute = "road_type"
	AttrSpecial   Attribute = "special"
	AttrSpeed     Attribute = "speed"
	AttrUrban     Attribute = "urban"
	AttrWeather   Attribute = "weather"
)

// CasualtiesColumn is the summed casualty count column.
const CasualtiesColumn = "casualties"

// AttributeDomain is a categorical attribute together with every code it may hold.
type AttributeDomain struct {
	Name  Attribute
	Codes []int
}

// Contains reports whether code belongs to the domain
func (d AttributeDomain) Contains(code int) bool {
	for _, c := range d.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// Categorical lists the one-hot expanded attributes in output column order.
var Categorical = []AttributeDomain{
	{AttrRoadClass, []int{0, 1, 2, 3}},
	{AttrSeverity, []int{0, 1, 2}},
	{AttrHazards, []int{0, 1}},
	{AttrJunction, []int{0, 1}},
	{AttrDark, []int{0, 1}},
	{AttrVehicles, []int{1, 2, 3, 4, 5}},
	{AttrWet, []int{0, 1}},
	{AttrRoadType, []int{0, 1, 2}},
	{AttrSpecial, []int{0, 1}},
	{AttrSpeed, []int{0, 1, 2}},
	{AttrUrban, []int{0, 1}},
	{AttrWeather, []int{0, 1}},
}

// NumCategorical is len(Categorical)
const NumCategorical = 12

// Codes holds one code per entry of Categorical, in the same order.
type Codes [NumCategorical]int

// Accident is one recoded accident record.
type Accident struct {
	RoadClass  int     `json:"road_class" validate:"min=0,max=3"`
	Severity   int     `json:"severity" validate:"min=0,max=2"`
	Hazards    int     `json:"hazards" validate:"min=0,max=1"`
	Junction   int     `json:"junction" validate:"min=0,max=1"`
	Dark       int     `json:"dark" validate:"min=0,max=1"`
	Vehicles   int     `json:"vehicles" validate:"min=1,max=5"`
	Wet        int     `json:"wet" validate:"min=0,max=1"`
	RoadType   int     `json:"road_type" validate:"min=0,max=2"`
	Special    int     `json:"special" validate:"min=0,max=1"`
	Speed      int     `json:"speed" validate:"min=0,max=2"`
	Urban      int     `json:"urban" validate:"min=0,max=1"`
	Weather    int     `json:"weather" validate:"min=0,max=1"`
	Casualties int     `json:"casualties" validate:"min=0"`
	Year       int     `json:"year"`
	Latitude   float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude  float64 `json:"longitude" validate:"min=-180,max=180"`
	Time       string  `json:"time,omitempty"`
}

// Codes returns the categorical codes in Categorical order
func (a Accident) Codes() Codes {
	return Codes{
		a.RoadClass, a.Severity, a.Hazards, a.Junction, a.Dark, a.Vehicles,
		a.Wet, a.RoadType, a.Special, a.Speed, a.Urban, a.Weather,
	}
}

// InDomain reports the first attribute whose code lies outside its domain.
func (c Codes) InDomain() (Attribute, bool) {
	for i, d := range Categorical {
		if !d.Contains(c[i]) {
			return d.Name, false
		}
	}
	return "", true
}

// JoinedAccident is an accident paired with the district containing it.
// Coordinates and time are not carried past the join.
type JoinedAccident struct {
	District   *District
	Year       int
	Casualties int
	Codes      Codes
}

// IndicatorColumn names the one-hot column for attr == code
func IndicatorColumn(attr Attribute, code int) string {
	return fmt.Sprintf("%s_%d", attr, code)
}

// columnRank orders indicator columns by attribute then code, then
// casualties, then anything else.
func columnRank(col string) (int, int) {
	if col == CasualtiesColumn {
		return len(Categorical), 0
	}
	for i, d := range Categorical {
		prefix := string(d.Name) + "_"
		if !strings.HasPrefix(col, prefix) {
			continue
		}
		code, err := strconv.Atoi(strings.TrimPrefix(col, prefix))
		if err != nil {
			continue
		}
		return i, code
	}
	return len(Categorical) + 1, 0
}

// SortColumns orders count columns canonically, in place.
func SortColumns(cols []string) {
	sort.SliceStable(cols, func(i, j int) bool {
		ri, ci := columnRank(cols[i])
		rj, cj := columnRank(cols[j])
		if ri != rj {
			return ri < rj
		}
		if ci != cj {
			return ci < cj
		}
		return cols[i] < cols[j]
	})
}
