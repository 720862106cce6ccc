// Package supmcu implements the SupMCU SCPI framing used on the Pumpkin bus:
// command frames, telemetry request strings, the telemetry response frame and
// the single-character value formats used by telemetry definitions.
package supmcu
