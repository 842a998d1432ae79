package cli

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

const (
	// MaxBaggageKg is the heaviest single baggage reservation accepted.
	MaxBaggageKg = 40
	// MaxMonitorInterval is one year in seconds.
	MaxMonitorInterval = 31_536_000
)

var (
	ErrSourceNotAlpha      = errors.New("Source must be made up of only letters")
	ErrDestinationNotAlpha = errors.New("Destination must be made up of only letters")
	ErrInvalidFlightID     = errors.New("Invalid flight identifier")
	ErrInvalidSeats        = errors.New("Invalid number of seats")
	ErrInvalidBaggage      = errors.New("Invalid baggage weight")
	ErrBaggageTooHeavy     = errors.New("Baggage weight must be less than or equal to 40kg")
	ErrInvalidInterval     = errors.New("Invalid monitor interval")
	ErrIntervalTooBig      = errors.New("Monitor interval is too big.")
)

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func parsePlace(s string, notAlpha error) (string, error) {
	s = strings.TrimSpace(s)
	if !isAlpha(s) {
		return "", notAlpha
	}
	return s, nil
}

func parseU32(s string, invalid error) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, invalid
	}
	return uint32(v), nil
}

func parseBaggage(s string) (uint32, error) {
	kg, err := parseU32(s, ErrInvalidBaggage)
	if err != nil {
		return 0, err
	}
	if kg > MaxBaggageKg {
		return 0, ErrBaggageTooHeavy
	}
	return kg, nil
}

func parseInterval(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, ErrIntervalTooBig
		}
		return 0, ErrInvalidInterval
	}
	if v > MaxMonitorInterval {
		return 0, ErrIntervalTooBig
	}
	return uint32(v), nil
}
