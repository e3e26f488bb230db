package domain

// PopulationRecord is a population total. Year is zero once records have
// been reduced to one row per district.
type PopulationRecord struct {
	District   string  `json:"district" db:"district" validate:"required"`
	Code       string  `json:"code" db:"code"`
	Year       int     `json:"year" db:"year"`
	Population float64 `json:"population" db:"population" validate:"gt=0"`
}

// Key returns the join key for the given mode ("name" or "code")
func (p PopulationRecord) Key(joinOn string) string {
	if joinOn == "code" {
		return p.Code
	}
	return p.District
}
