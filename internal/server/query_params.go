package server

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	errInvalidID   = errors.New("invalid_id")
	errInvalidTime = errors.New("invalid_time")
)

// parsePathID reads a session id from a route parameter.
func parsePathID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// parseSinceID reads the message cursor. Blank means from the start.
func parseSinceID(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id < 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// timeBound says which end of a range a query value closes. A bare date
// covers the whole UTC day, so as an upper bound it means the last instant of it.
type timeBound bool

const (
	lowerBound timeBound = false
	upperBound timeBound = true
)

func (b timeBound) parse(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return &ts, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, value, time.UTC)
	if err != nil {
		return nil, errInvalidTime
	}
	if b == upperBound {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}
