// Package naming converts human-readable telemetry labels into the identifiers
// used as lookup keys and as GraphQL field names.
package naming

import (
	"regexp"
	"strings"
)

var (
	trailingNonWord = regexp.MustCompile(`[^A-Za-z0-9_]+$`)
	nonWordRun      = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// Normalize replaces every run of characters outside [A-Za-z0-9_] with a single
// underscore, dropping a trailing run entirely, and lowercases the result.
//
//	"Firmware version"             -> "firmware_version"
//	"Payload Currents in mA"       -> "payload_currents_in_ma"
//	"Temp sensor 9 reading (0.1K)" -> "temp_sensor_9_reading_0_1k"
//
// Normalize is total and idempotent; an all-punctuation label yields "".
func Normalize(raw string) string {
	s := trailingNonWord.ReplaceAllString(raw, "")
	s = nonWordRun.ReplaceAllString(s, "_")
	return strings.ToLower(s)
}
