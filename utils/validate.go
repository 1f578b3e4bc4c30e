// File: utils/validate.go
package utils

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	// Ethiopian numbers: +2519/+2517 or 09/07 followed by eight digits.
	phonePattern = regexp.MustCompile(`^(\+251|0)[79]\d{8}$`)
)

// ParseFutureDate parses a YYYY-MM-DD date and rejects dates in the past.
func ParseFutureDate(text string, now time.Time) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(text))
	if err != nil {
		return time.Time{}, errors.New("date must look like 2025-12-31")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if d.Before(today) {
		return time.Time{}, errors.New("date cannot be in the past")
	}
	return d, nil
}

// ParseCount parses an integer and checks it against an inclusive range.
func ParseCount(text string, min, max int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, errors.New("expected a whole number")
	}
	if n < min || n > max {
		return 0, errors.New("number out of range")
	}
	return n, nil
}

// ParsePrice parses a positive amount, tolerating thousands separators.
func ParsePrice(text string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	p, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || p <= 0 {
		return 0, errors.New("expected a positive amount")
	}
	return p, nil
}

// NormalizeCity trims and title-cases a city name.
func NormalizeCity(text string) (string, error) {
	city := strings.TrimSpace(text)
	if len(city) < 2 {
		return "", errors.New("city name is too short")
	}
	words := strings.Fields(strings.ToLower(city))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " "), nil
}

// ValidEmail reports whether the address looks deliverable.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// ValidPhone reports whether the number is a valid Ethiopian mobile number.
func ValidPhone(phone string) bool {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(phone)
	return phonePattern.MatchString(cleaned)
}
