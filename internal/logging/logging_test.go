package logging

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func newTestLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(log.New(&buf, "", 0)), &buf
}

func TestDefaultLevelDropsDebug(t *testing.T) {
	l, buf := newTestLogger()
	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug line was not suppressed at default level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("info line missing: %q", buf.String())
	}
}

func TestSetLevelChangesWhatIsEmitted(t *testing.T) {
	l, buf := newTestLogger()
	l.SetLevel(LevelError)
	l.Warnf("dropped")
	if buf.Len() != 0 {
		t.Fatalf("warn line emitted at error level: %q", buf.String())
	}
	l.Errorf("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("error line missing: %q", buf.String())
	}
}

func TestParseLevelRoundTrips(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error"} {
		lv, err := ParseLevel(s)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if lv.String() != s {
			t.Fatalf("ParseLevel(%q).String() = %q", s, lv.String())
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
