package gps

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const knotsToKmh = 1.852

// nmeaData accumulates fields across sentence types the way the NEO-6M
// interleaves them: RMC carries position/speed/date, GGA carries fix
// quality, satellite count, HDOP and altitude.
type nmeaData struct {
	Latitude   float64
	Longitude  float64
	Altitude   float64
	SpeedKmh   float64
	CourseDeg  float64
	Satellites int
	HDOP       float64
	Timestamp  time.Time
	Valid      bool
	hasRMC     bool
}

// parseSentence folds one NMEA sentence into the accumulated data.
// Unknown sentence types are ignored.
func (d *nmeaData) parseSentence(line string) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil
	}
	body, ok := stripChecksum(line[1:])
	if !ok {
		return fmt.Errorf("nmea checksum mismatch: %q", line)
	}

	fields := strings.Split(body, ",")
	if len(fields) == 0 {
		return nil
	}
	// Talker prefix varies (GP, GN, GL); match on the sentence type.
	kind := fields[0]
	if len(kind) == 5 {
		kind = kind[2:]
	}

	switch kind {
	case "RMC":
		return d.parseRMC(fields)
	case "GGA":
		return d.parseGGA(fields)
	}
	return nil
}

// parseRMC handles $xxRMC,time,status,lat,N,lon,E,speed,course,date,...
func (d *nmeaData) parseRMC(f []string) error {
	if len(f) < 10 {
		return fmt.Errorf("short RMC sentence")
	}
	if f[2] != "A" {
		d.Valid = false
		return nil
	}

	lat, err := parseCoordinate(f[3], f[4])
	if err != nil {
		return err
	}
	lon, err := parseCoordinate(f[5], f[6])
	if err != nil {
		return err
	}

	d.Latitude = lat
	d.Longitude = lon
	if v, err := strconv.ParseFloat(f[7], 64); err == nil {
		d.SpeedKmh = v * knotsToKmh
	}
	if v, err := strconv.ParseFloat(f[8], 64); err == nil {
		d.CourseDeg = v
	}
	if ts, err := parseDateTime(f[9], f[1]); err == nil {
		d.Timestamp = ts
	}
	d.Valid = true
	d.hasRMC = true
	return nil
}

// parseGGA handles $xxGGA,time,lat,N,lon,E,quality,sats,hdop,alt,M,...
func (d *nmeaData) parseGGA(f []string) error {
	if len(f) < 10 {
		return fmt.Errorf("short GGA sentence")
	}
	if f[6] == "0" || f[6] == "" {
		return nil
	}
	if v, err := strconv.Atoi(f[7]); err == nil {
		d.Satellites = v
	}
	if v, err := strconv.ParseFloat(f[8], 64); err == nil {
		d.HDOP = v
	}
	if v, err := strconv.ParseFloat(f[9], 64); err == nil {
		d.Altitude = v
	}
	return nil
}

// toFix converts accumulated data into a Fix once an RMC with status A has
// been seen.
func (d *nmeaData) toFix(source string) *Fix {
	if !d.Valid || !d.hasRMC {
		return nil
	}
	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Fix{
		Latitude:   d.Latitude,
		Longitude:  d.Longitude,
		Altitude:   d.Altitude,
		SpeedKmh:   d.SpeedKmh,
		CourseDeg:  d.CourseDeg,
		Satellites: d.Satellites,
		HDOP:       d.HDOP,
		Timestamp:  ts,
		Source:     source,
	}
}

// parseCoordinate converts NMEA ddmm.mmmm / dddmm.mmmm plus hemisphere
// into signed decimal degrees.
func parseCoordinate(value, hemisphere string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	dot := strings.Index(value, ".")
	if dot < 3 {
		return 0, fmt.Errorf("malformed coordinate %q", value)
	}
	degrees, err := strconv.ParseFloat(value[:dot-2], 64)
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseFloat(value[dot-2:], 64)
	if err != nil {
		return 0, err
	}
	coord := degrees + minutes/60.0
	if hemisphere == "S" || hemisphere == "W" {
		coord = -coord
	}
	return coord, nil
}

// parseDateTime combines RMC ddmmyy and hhmmss.sss into a UTC timestamp.
func parseDateTime(date, clock string) (time.Time, error) {
	if len(date) != 6 || len(clock) < 6 {
		return time.Time{}, fmt.Errorf("malformed date/time %q %q", date, clock)
	}
	day, err1 := strconv.Atoi(date[0:2])
	month, err2 := strconv.Atoi(date[2:4])
	year, err3 := strconv.Atoi(date[4:6])
	hour, err4 := strconv.Atoi(clock[0:2])
	minute, err5 := strconv.Atoi(clock[2:4])
	second, err6 := strconv.ParseFloat(clock[4:], 64)
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return time.Time{}, err
		}
	}
	nsec := int((second - float64(int(second))) * 1e9)
	return time.Date(2000+year, time.Month(month), day, hour, minute, int(second), nsec, time.UTC), nil
}

// stripChecksum validates and removes the *hh suffix.
func stripChecksum(body string) (string, bool) {
	star := strings.LastIndex(body, "*")
	if star < 0 {
		// Checksum is technically optional; accept the sentence as-is.
		return body, true
	}
	want, err := strconv.ParseUint(body[star+1:], 16, 8)
	if err != nil {
		return "", false
	}
	var sum byte
	for i := 0; i < star; i++ {
		sum ^= body[i]
	}
	return body[:star], sum == byte(want)
}
