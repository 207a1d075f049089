package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dates are persisted as YYYY-MM-01 text so that lexicographic order equals
// chronological order in SQL.
const dateLayout = "2006-01-02"

// ParseYYYYMM converts "YYYY-MM" into the first day of that month (UTC).
func ParseYYYYMM(value string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(value), "-")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM", ErrInvalidIdentifier)
	}
	y, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM", ErrInvalidIdentifier)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 1 || m > 12 {
		return time.Time{}, fmt.Errorf("%w: month must be 1..12", ErrInvalidIdentifier)
	}
	return time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC), nil
}

func dateText(t time.Time) string {
	return t.Format(dateLayout)
}

func monthText(t time.Time) string {
	return t.Format("2006-01")
}

func parseDateText(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// BBox is a normalized geographic bounding box.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// ParseBBox parses "minx,miny,maxx,maxy", normalizing inverted bounds.
// Malformed input yields nil (no filter) rather than an error, matching the
// map UI's optional viewport parameter.
func ParseBBox(raw string) *BBox {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil
		}
		vals[i] = f
	}
	b := &BBox{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
	if b.MaxX < b.MinX {
		b.MinX, b.MaxX = b.MaxX, b.MinX
	}
	if b.MaxY < b.MinY {
		b.MinY, b.MaxY = b.MaxY, b.MinY
	}
	return b
}
