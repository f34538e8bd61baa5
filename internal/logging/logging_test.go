package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetup_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			for _, format := range []string{"text", "json"} {
				if got := Setup(format, tt.level).GetLevel(); got != tt.want {
					t.Errorf("Setup(%q, %q) level = %s, want %s", format, tt.level, got, tt.want)
				}
			}
		})
	}
}
