// Package util provides utility functions for the FastCab application.
package util

import (
	"math/rand/v2"
	"strings"
)

// BookingIDPrefix is prepended to every booking reference.
const BookingIDPrefix = "FC"

const upperAlphaNumeric = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateRandomHex generates a random hexadecimal string of the specified length.
func GenerateRandomHex(length int) string {
	return randomFrom("0123456789abcdef", length)
}

// GenerateRandomUpperAlphaNumeric generates a random string of digits and
// uppercase letters of the specified length.
func GenerateRandomUpperAlphaNumeric(length int) string {
	return randomFrom(upperAlphaNumeric, length)
}

// GenerateBookingID returns a booking reference such as "FC7K2Q9D".
// Uses math/rand/v2; references are user-facing labels, not secrets.
func GenerateBookingID() string {
	return BookingIDPrefix + GenerateRandomUpperAlphaNumeric(6)
}

// IsBookingID reports whether s has the shape produced by GenerateBookingID.
func IsBookingID(s string) bool {
	if len(s) != len(BookingIDPrefix)+6 || !strings.HasPrefix(s, BookingIDPrefix) {
		return false
	}
	for _, c := range s[len(BookingIDPrefix):] {
		if !strings.ContainsRune(upperAlphaNumeric, c) {
			return false
		}
	}
	return true
}

func randomFrom(chars string, length int) string {
	if length <= 0 {
		return ""
	}
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(chars[rand.IntN(len(chars))])
	}
	return builder.String()
}
