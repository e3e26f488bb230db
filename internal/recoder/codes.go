package recoder

// Raw column names of the accident dataset
const (
	ColRoadClass  = "1st_Road_Class"
	ColSeverity   = "Accident_Severity"
	ColHazards    = "Carriageway_Hazards"
	ColJunction   = "Junction_Detail"
	ColLight      = "Light_Conditions"
	ColCasualties = "Number_of_Casualties"
	ColVehicles   = "Number_of_Vehicles"
	ColSurface    = "Road_Surface_Conditions"
	ColRoadType   = "Road_Type"
	ColSpecial    = "Special_Conditions_at_Site"
	ColSpeed      = "Speed_limit"
	ColTime       = "Time"
	ColUrban      = "Urban_or_Rural_Area"
	ColWeather    = "Weather_Conditions"
	ColYear       = "Year"
	ColLatitude   = "Latitude"
	ColLongitude  = "Longitude"
)

// RequiredColumns must all be present for recoding
var RequiredColumns = []string{
	ColRoadClass, ColSeverity, ColHazards, ColJunction, ColLight,
	ColCasualties, ColVehicles, ColSurface, ColRoadType, ColSpecial,
	ColSpeed, ColUrban, ColWeather, ColYear, ColLatitude, ColLongitude,
}

// PrunedColumns are carried by the raw dataset but never used downstream
var PrunedColumns = []string{"Accident_Index", "Junction_Control", "Local_Authority_(District)"}

var roadClassCodes = map[string]int{
	"A":            0,
	"A(M)":         0,
	"Motorway":     0,
	"B":            1,
	"C":            2,
	"Unclassified": 3,
}

var severityCodes = map[string]int{
	"Slight":  0,
	"Serious": 1,
	"Fatal":   2,
}

var urbanCodes = map[string]int{
	"Rural":       0,
	"Urban":       1,
	"Unallocated": 1,
}

// Baseline values of the binary flags; anything else maps to 1.
var (
	hazardsBaseline  = []string{"None"}
	junctionBaseline = []string{"Not at junction or within 20 metres"}
	lightBaseline    = []string{"Daylight"}
	surfaceBaseline  = []string{"Dry", "Data missing or out of range"}
	specialBaseline  = []string{"None"}
	weatherBaseline  = []string{"Fine no high winds", "Unknown", "Data missing or out of range"}
)

// RoadClassCode maps a road class to 0..3
func RoadClassCode(v string) (int, bool) {
	code, ok := roadClassCodes[v]
	return code, ok
}

// SeverityCode maps a severity label to 0..2
func SeverityCode(v string) (int, bool) {
	code, ok := severityCodes[v]
	return code, ok
}

// UrbanCode maps the urban/rural label to 0 or 1
func UrbanCode(v string) (int, bool) {
	code, ok := urbanCodes[v]
	return code, ok
}

// RoadTypeCode maps single carriageway to 0, dual carriageway to 1 and every
// other road type to 2.
func RoadTypeCode(v string) int {
	switch v {
	case "Single carriageway":
		return 0
	case "Dual carriageway":
		return 1
	default:
		return 2
	}
}

// Flag returns 0 when v is one of the baseline values and 1 otherwise
func Flag(v string, baseline []string) int {
	for _, b := range baseline {
		if v == b {
			return 0
		}
	}
	return 1
}

// VehicleBucket caps the vehicle count at 5
func VehicleBucket(n int) int {
	if n >= 5 {
		return 5
	}
	return n
}

// SpeedBand maps a speed limit to 0 (<=30), 1 (30-60) or 2 (>=60)
func SpeedBand(limit float64) int {
	switch {
	case limit <= 30:
		return 0
	case limit < 60:
		return 1
	default:
		return 2
	}
}
