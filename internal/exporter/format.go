package exporter

import (
	"strconv"
)

// formatRate formats a rate with the shortest exact representation
func formatRate(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatCoord formats a National Grid coordinate to millimetres
func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
