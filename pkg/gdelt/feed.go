package gdelt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// CameoNullSentinel marks a feed row without an event-type code. Rows
// carrying it are dropped by the normalizer.
const CameoNullSentinel = "---"

// ErrMalformedDate is returned when a feed row's date field cannot be parsed
// as a YYYYMMDD calendar date. This is fatal for the ingestion run.
var ErrMalformedDate = errors.New("malformed date field")

// feedFieldCount is the column count of the reduced GDELT feed:
// Date, Source, Target, CAMEOCode, NumEvents, NumArts, QuadClass, Goldstein,
// then (type, lat, long) for each of the source, target and action locations.
const feedFieldCount = 17

// RawRow is a single parsed line of the raw feed, before filtering and geo
// resolution.
type RawRow struct {
	Line       int
	Date       time.Time
	SourceCode string
	TargetCode string
	CameoCode  string
	NumEvents  int32
	NumArts    int32
	QuadClass  int32
	Goldstein  float64

	// Location triples. A nil entry means the role had no location in the
	// feed (one or more of its three fields was empty).
	SourceGeo *GeoKey
	TargetGeo *GeoKey
	ActionGeo *GeoKey
}

// DecomposeDate parses an 8-digit YYYYMMDD field into a calendar date.
func DecomposeDate(field string) (time.Time, error) {
	if len(field) != 8 {
		return time.Time{}, fmt.Errorf("%w: %q is not 8 digits", ErrMalformedDate, field)
	}
	for _, r := range field {
		if r < '0' || r > '9' {
			return time.Time{}, fmt.Errorf("%w: %q is not 8 digits", ErrMalformedDate, field)
		}
	}

	year, _ := strconv.Atoi(field[:4])
	month, _ := strconv.Atoi(field[4:6])
	day, _ := strconv.Atoi(field[6:])

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range components (month 13, day 32), so a
	// changed round-trip means the field was not a real calendar date.
	if FormatDate(date) != field {
		return time.Time{}, fmt.Errorf("%w: %q is not a valid calendar date", ErrMalformedDate, field)
	}
	return date, nil
}

// FormatDate renders a date in the feed's YYYYMMDD form.
func FormatDate(date time.Time) string {
	return date.Format("20060102")
}

// parseGeoKey builds the location triple for one role. All three fields
// empty, or any one of them empty, yields nil (no location).
func parseGeoKey(geoType, lat, long string, line int) (*GeoKey, error) {
	if geoType == "" || lat == "" || long == "" {
		return nil, nil
	}

	typeVal, err := strconv.ParseInt(geoType, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("line %d: invalid geo type %q: %w", line, geoType, err)
	}
	latVal, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, fmt.Errorf("line %d: invalid latitude %q: %w", line, lat, err)
	}
	longVal, err := strconv.ParseFloat(long, 64)
	if err != nil {
		return nil, fmt.Errorf("line %d: invalid longitude %q: %w", line, long, err)
	}

	return &GeoKey{Type: int32(typeVal), Lat: latVal, Long: longVal}, nil
}

func parseInt32(field, name string, line int) (int32, error) {
	val, err := strconv.ParseInt(field, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid %s %q: %w", line, name, field, err)
	}
	return int32(val), nil
}

// ParseRow parses one tab-separated feed line.
func ParseRow(line string, lineNum int) (*RawRow, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != feedFieldCount {
		return nil, fmt.Errorf("line %d: expected %d fields, found %d", lineNum, feedFieldCount, len(fields))
	}

	date, err := DecomposeDate(fields[0])
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", lineNum, err)
	}

	numEvents, err := parseInt32(fields[4], "event count", lineNum)
	if err != nil {
		return nil, err
	}
	numArts, err := parseInt32(fields[5], "article count", lineNum)
	if err != nil {
		return nil, err
	}
	quadClass, err := parseInt32(fields[6], "quad class", lineNum)
	if err != nil {
		return nil, err
	}
	goldstein, err := strconv.ParseFloat(fields[7], 64)
	if err != nil {
		return nil, fmt.Errorf("line %d: invalid goldstein %q: %w", lineNum, fields[7], err)
	}

	sourceGeo, err := parseGeoKey(fields[8], fields[9], fields[10], lineNum)
	if err != nil {
		return nil, err
	}
	targetGeo, err := parseGeoKey(fields[11], fields[12], fields[13], lineNum)
	if err != nil {
		return nil, err
	}
	actionGeo, err := parseGeoKey(fields[14], fields[15], fields[16], lineNum)
	if err != nil {
		return nil, err
	}

	return &RawRow{
		Line:       lineNum,
		Date:       date,
		SourceCode: fields[1],
		TargetCode: fields[2],
		CameoCode:  fields[3],
		NumEvents:  numEvents,
		NumArts:    numArts,
		QuadClass:  quadClass,
		Goldstein:  goldstein,
		SourceGeo:  sourceGeo,
		TargetGeo:  targetGeo,
		ActionGeo:  actionGeo,
	}, nil
}

// ScanFeed streams the raw feed line by line, calling fn for each parsed row.
// The feed is never materialized in memory; a parse error or an error from fn
// aborts the scan. Blank lines are skipped.
func ScanFeed(r io.Reader, fn func(*RawRow) error) error {
	scanner := bufio.NewScanner(r)
	// Feed lines are short, but leave headroom over the default buffer.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		row, err := ParseRow(line, lineNum)
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read feed: %w", err)
	}
	return nil
}
