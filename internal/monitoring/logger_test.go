package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("listener on %s", ":20777")
	if got != "listener on :20777" {
		t.Errorf("custom logger got %q", got)
	}

	// nil installs a no-op that must not reach the previous logger
	got = ""
	SetLogger(nil)
	Logf("dropped")
	if got != "" {
		t.Errorf("no-op logger forwarded %q", got)
	}
}

func TestSilence(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	calls := 0
	SetLogger(func(string, ...interface{}) { calls++ })

	restore := Silence()
	Logf("muted")
	if calls != 0 {
		t.Fatalf("Silence did not mute logger, calls = %d", calls)
	}

	restore()
	Logf("audible")
	if calls != 1 {
		t.Errorf("restore did not reinstate logger, calls = %d", calls)
	}
}
