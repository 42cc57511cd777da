// Package labelfile encodes detections into YOLO-style label files.
//
// Each line is "<class_id> <cx> <cy> <w> <h> <confidence>" with values
// rounded to 6 decimal places. An empty detection set encodes to an empty
// file.
package labelfile

import (
	"math"
	"strconv"
	"strings"

	"smartsort_backend/internal/feature/sorting/domain/entity"
)

// Precision is the number of decimal places kept in label values.
const Precision = 6

// Line formats one label line without the trailing newline.
func Line(classID int, box entity.Geometry, confidence float64) string {
	fields := []string{
		strconv.Itoa(classID),
		FormatNumber(box.CenterX),
		FormatNumber(box.CenterY),
		FormatNumber(box.Width),
		FormatNumber(box.Height),
		FormatNumber(confidence),
	}
	return strings.Join(fields, " ")
}

// Encode writes one line per detection.
func Encode(ds []entity.Detection) []byte {
	var b strings.Builder
	for _, d := range ds {
		b.WriteString(Line(d.ClassID, d.Box, d.Confidence))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// EncodeCorrection writes a single line for a corrected class, or nothing
// when classID is not a valid category id.
func EncodeCorrection(classID int, box entity.Geometry, confidence float64) []byte {
	if classID < 0 {
		return []byte{}
	}
	return []byte(Line(classID, box, confidence) + "\n")
}

// FormatNumber rounds v to Precision decimals and prints the shortest form.
// Integral values keep a ".0" suffix so 1 prints as "1.0".
func FormatNumber(v float64) string {
	r := Round(v)
	if r == 0 {
		r = 0 // drop negative zero
	}
	s := strconv.FormatFloat(r, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Round rounds v half away from zero to Precision decimals.
func Round(v float64) float64 {
	return RoundTo(v, Precision)
}

// RoundTo rounds v half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
