package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetDebug(false)

	SetDebug(false)
	Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("debug output while disabled: %q", buf.String())
	}

	SetDebug(true)
	Debugf("shown %d", 2)
	Warnf("careful")
	Errorf("broken: %v", "x")

	out := buf.String()
	for _, want := range []string{"[DEBUG] shown 2", "[WARN] careful", "[ERROR] broken: x"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
