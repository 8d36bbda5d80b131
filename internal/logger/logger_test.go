package logger

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		mode, level string
	}{
		{"dev", "debug"},
		{"prod", "warn"},
		{"production", ""},
		{"", "nonsense"},
	}

	for _, tt := range tests {
		l, err := New(tt.mode, tt.level)
		if err != nil {
			t.Fatalf("New(%q, %q) failed: %v", tt.mode, tt.level, err)
		}
		if l.Zap() == nil {
			t.Errorf("New(%q, %q) returned a logger without a zap core", tt.mode, tt.level)
		}
	}
}

func TestLevel(t *testing.T) {
	l, err := New("prod", "warn")
	if err != nil {
		t.Fatal(err)
	}
	if l.Zap().Core().Enabled(-1) {
		t.Error("debug should be disabled at warn level")
	}

	l, _ = New("dev", "bogus")
	if !l.Zap().Core().Enabled(0) {
		t.Error("unknown level should fall back to info")
	}
}

func TestWithAndNop(t *testing.T) {
	l := Nop().With("request_id", "abc")
	l.Info("ignored", "k", "v")
	l.Sync()
}
