package logging

import (
	"bytes"
	"sync"
	"testing"
)

func TestLogger(t *testing.T) {
	bufOut := bytes.NewBuffer(nil)
	bufErr := bytes.NewBuffer(nil)
	logger := NewLogger(bufOut, bufErr)

	logger.Warn("Test message")
	if bufErr.String() != "warn: Test message\n" {
		t.Errorf("Warn did not produce expected output, got %q", bufErr.String())
	}
	bufErr.Reset()

	logger.Error("Test message")
	if bufErr.String() != "error: Test message\n" {
		t.Errorf("Error did not produce expected output, got %q", bufErr.String())
	}
	bufErr.Reset()

	logger.Debug("Test message")
	if bufOut.String() != "debug: Test message\n" {
		t.Errorf("Debug did not produce expected output, got %q", bufOut.String())
	}
	bufOut.Reset()

	logger.Info("Test message")
	if bufOut.String() != "" {
		t.Errorf("Info should not produce output before EnableInfo, got %q", bufOut.String())
	}

	logger.EnableInfo()
	if !logger.EnabledInfo {
		t.Error("EnableInfo did not enable info logging")
	}
	logger.Info("Test message")
	if bufOut.String() != "info: Test message\n" {
		t.Errorf("Info did not produce expected output, got %q", bufOut.String())
	}
	bufOut.Reset()

	logger.Trace("subsystem", "Test message")
	if bufOut.String() != "" {
		t.Errorf("Trace should not produce output before EnableTracing, got %q", bufOut.String())
	}

	logger.EnableTracing("subsystem")
	if _, ok := logger.traceSubsystems["subsystem"]; !ok {
		t.Error("EnableTracing did not register subsystem")
	}

	logger.Trace("subsystem", "Test message")
	if bufOut.String() != "trace: subsystem: Test message\n" {
		t.Errorf("Trace did not produce expected output, got %q", bufOut.String())
	}
	bufOut.Reset()

	logger.Trace("unknown", "Test message")
	if bufOut.String() != "" {
		t.Errorf("Trace should stay silent for an unregistered subsystem, got %q", bufOut.String())
	}

	logger.EnableTracing("all")
	logger.Trace("unknown", "Test message")
	if bufOut.String() != "trace: unknown: Test message\n" {
		t.Errorf("Trace with \"all\" did not produce expected output, got %q", bufOut.String())
	}
}

func TestLoggerConcurrency(t *testing.T) {
	bufOut := bytes.NewBuffer(nil)
	bufErr := bytes.NewBuffer(nil)
	logger := NewLogger(bufOut, bufErr)
	logger.EnableInfo()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.Info("Test message %d", i)
		}(i)
	}
	wg.Wait()
	if bufOut.String() == "" {
		t.Error("concurrent logging produced no output")
	}
}

// TestNilLoggerIsNoOp exercises the nil-safety every SPEC_FULL.md
// component that takes a *Logger relies on: version.New, doublearray.New,
// and the merge engine must all work without a configured logger.
func TestNilLoggerIsNoOp(t *testing.T) {
	var logger *Logger
	logger.EnableInfo()
	logger.EnableTracing("all")
	logger.Info("unreachable")
	logger.Warn("unreachable")
	logger.Error("unreachable")
	logger.Debug("unreachable")
	logger.Trace("subsystem", "unreachable")
}
