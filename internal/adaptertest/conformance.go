// Package adaptertest provides driver-agnostic conformance testing for bus adapters.
package adaptertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/RNCC-Cubesat/kubos/internal/adapter"
	"github.com/RNCC-Cubesat/kubos/internal/bus"
)

// Fixture describes the bus an adapter under test is attached to.
type Fixture struct {
	// Address of a module that is present on the bus.
	Address uint16

	// MissingAddress is an address no module answers on.
	MissingAddress uint16

	// Channel and Item describe a telemetry item the module answers.
	Channel string
	Item    bus.TelemetryItem

	// Command is a command the module accepts.
	Command string
}

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	AdapterName   string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

// RunConformance runs the complete conformance test suite for an adapter.
// newAdapter must return a fresh adapter on every call.
func RunConformance(t *testing.T, name string, newAdapter func() adapter.IBusAdapter, fx Fixture) {
	startTime := time.Now()

	report := &ConformanceReport{
		AdapterName:   name,
		Results:       []ConformanceResult{},
		OverallPassed: true,
	}

	runReadValuesTests(newAdapter, fx, report)
	runSendCommandTests(newAdapter, fx, report)
	runReadTests(newAdapter, fx, report)
	runFailureMappingTests(newAdapter, fx, report)
	runIdempotencyTests(newAdapter, fx, report)
	runCloseTests(newAdapter, fx, report)
	runTimingTests(newAdapter, fx, report)

	report.Duration = time.Since(startTime)

	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Adapter conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

// check runs one named test step and records the outcome.
func check(report *ConformanceReport, name string, step func(details map[string]interface{}) error) {
	result := ConformanceResult{
		TestName: name,
		Details:  make(map[string]interface{}),
	}
	start := time.Now()
	err := step(result.Details)
	result.Duration = time.Since(start)

	if err != nil {
		result.Error = err.Error()
	} else {
		result.Passed = true
	}
	report.addResult(result)
}

// runReadValuesTests tests telemetry requests.
func runReadValuesTests(newAdapter func() adapter.IBusAdapter, fx Fixture, report *ConformanceReport) {
	a := newAdapter()
	defer a.Close()
	ctx := context.Background()

	check(report, "ReadValues_Basic", func(details map[string]interface{}) error {
		values, err := a.ReadValues(ctx, fx.Address, fx.Channel, fx.Item)
		if err != nil {
			return fmt.Errorf("ReadValues failed: %v", err)
		}
		if len(values) == 0 {
			return fmt.Errorf("ReadValues returned no values")
		}
		for i, v := range values {
			if i < len(fx.Item.Format) && v.Format != fx.Item.Format[i] {
				return fmt.Errorf("value %d has format %q, want %q", i, v.Format, fx.Item.Format[i])
			}
		}
		details["values"] = len(values)
		return nil
	})

	check(report, "ReadValues_MissingModule", func(details map[string]interface{}) error {
		_, err := a.ReadValues(ctx, fx.MissingAddress, fx.Channel, fx.Item)
		return expectCode(err, adapter.ErrUnavailable, details)
	})
}

// runSendCommandTests tests command writes.
func runSendCommandTests(newAdapter func() adapter.IBusAdapter, fx Fixture, report *ConformanceReport) {
	a := newAdapter()
	defer a.Close()
	ctx := context.Background()

	check(report, "SendCommand_Basic", func(details map[string]interface{}) error {
		if err := a.SendCommand(ctx, fx.Address, fx.Command); err != nil {
			return fmt.Errorf("SendCommand(%q) failed: %v", fx.Command, err)
		}
		details["command"] = fx.Command
		return nil
	})

	check(report, "SendCommand_MissingModule", func(details map[string]interface{}) error {
		err := a.SendCommand(ctx, fx.MissingAddress, fx.Command)
		return expectCode(err, adapter.ErrUnavailable, details)
	})
}

// runReadTests tests raw reads and their count range.
func runReadTests(newAdapter func() adapter.IBusAdapter, fx Fixture, report *ConformanceReport) {
	a := newAdapter()
	defer a.Close()
	ctx := context.Background()

	for _, count := range []int{1, 16} {
		count := count
		check(report, fmt.Sprintf("Read_Valid_%d", count), func(details map[string]interface{}) error {
			data, err := a.Read(ctx, fx.Address, count)
			if err != nil {
				return fmt.Errorf("Read(%d) failed: %v", count, err)
			}
			if len(data) != count {
				return fmt.Errorf("Read(%d) returned %d bytes", count, len(data))
			}
			return nil
		})
	}

	for _, count := range []int{0, -1, adapter.MaxReadSize + 1} {
		count := count
		check(report, fmt.Sprintf("Read_Invalid_%d", count), func(details map[string]interface{}) error {
			_, err := a.Read(ctx, fx.Address, count)
			return expectCode(err, adapter.ErrInvalidRange, details)
		})
	}
}

// runFailureMappingTests tests that a cancelled context is honored.
func runFailureMappingTests(newAdapter func() adapter.IBusAdapter, fx Fixture, report *ConformanceReport) {
	a := newAdapter()
	defer a.Close()

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	check(report, "FailureMapping_ContextCancellation", func(details map[string]interface{}) error {
		_, err := a.ReadValues(cancelledCtx, fx.Address, fx.Channel, fx.Item)
		if err == nil {
			return fmt.Errorf("ReadValues with cancelled context should have failed")
		}
		details["error"] = err.Error()
		return nil
	})
}

// runIdempotencyTests tests that sending the same command twice succeeds twice.
func runIdempotencyTests(newAdapter func() adapter.IBusAdapter, fx Fixture, report *ConformanceReport) {
	a := newAdapter()
	defer a.Close()
	ctx := context.Background()

	check(report, "Idempotency_SendSameCommand", func(details map[string]interface{}) error {
		if err := a.SendCommand(ctx, fx.Address, fx.Command); err != nil {
			return fmt.Errorf("first SendCommand failed: %v", err)
		}
		if err := a.SendCommand(ctx, fx.Address, fx.Command); err != nil {
			return fmt.Errorf("second SendCommand failed: %v", err)
		}
		return nil
	})
}

// runCloseTests tests that a closed adapter reports UNAVAILABLE.
func runCloseTests(newAdapter func() adapter.IBusAdapter, fx Fixture, report *ConformanceReport) {
	a := newAdapter()
	ctx := context.Background()

	check(report, "Close_ThenUse", func(details map[string]interface{}) error {
		if err := a.Close(); err != nil {
			return fmt.Errorf("Close failed: %v", err)
		}
		err := a.SendCommand(ctx, fx.Address, fx.Command)
		return expectCode(err, adapter.ErrUnavailable, details)
	})
}

// runTimingTests tests that operations complete well within a command timeout.
func runTimingTests(newAdapter func() adapter.IBusAdapter, fx Fixture, report *ConformanceReport) {
	a := newAdapter()
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	check(report, "Timing_NoSleeps", func(details map[string]interface{}) error {
		start := time.Now()
		_, err := a.ReadValues(ctx, fx.Address, fx.Channel, fx.Item)
		elapsed := time.Since(start)

		if elapsed > 50*time.Millisecond {
			return fmt.Errorf("operation took too long: %v", elapsed)
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("unexpected error: %v", err)
		}
		details["duration"] = elapsed.String()
		return nil
	})
}

// Helper functions

func expectCode(err error, code error, details map[string]interface{}) error {
	if err == nil {
		return fmt.Errorf("expected %v, got success", code)
	}
	if !errors.Is(err, code) {
		return fmt.Errorf("expected %v, got: %v", code, err)
	}
	details["expectedError"] = code.Error()
	details["actualError"] = err.Error()
	return nil
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("\n%s", strings.Repeat("=", 80))
	t.Logf("ADAPTER CONFORMANCE REPORT")
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("Adapter: %s", report.AdapterName)
	t.Logf("Total Tests: %d", report.TotalTests)
	t.Logf("Passed: %d", report.PassedTests)
	t.Logf("Failed: %d", report.FailedTests)
	t.Logf("Overall: %s", map[bool]string{true: "PASS", false: "FAIL"}[report.OverallPassed])
	t.Logf("Duration: %v", report.Duration)
	t.Logf("%s", strings.Repeat("-", 80))

	t.Logf("%-36s %-8s %-12s %-s", "TEST NAME", "RESULT", "DURATION", "DETAILS")
	t.Logf("%s", strings.Repeat("-", 80))

	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}

		details := ""
		if result.Error != "" {
			details = result.Error
		} else if len(result.Details) > 0 {
			var detailParts []string
			for k, v := range result.Details {
				detailParts = append(detailParts, fmt.Sprintf("%s=%v", k, v))
			}
			details = strings.Join(detailParts, ", ")
		}

		t.Logf("%-36s %-8s %-12s %-s", result.TestName, status, result.Duration.String(), details)
	}

	t.Logf("%s", strings.Repeat("=", 80))
}
