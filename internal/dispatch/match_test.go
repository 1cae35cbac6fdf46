package dispatch

import "testing"

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		topic   string
		want    bool
	}{
		{
			name:    "literal equality",
			pattern: "devices/42/status",
			topic:   "devices/42/status",
			want:    true,
		},
		{
			name:    "single-level wildcard matches one token",
			pattern: "devices/+/status",
			topic:   "devices/42/status",
			want:    true,
		},
		{
			name:    "single-level wildcard wrong suffix",
			pattern: "devices/+/status",
			topic:   "devices/42/other",
			want:    false,
		},
		{
			name:    "single-level wildcard does not cross levels",
			pattern: "devices/+/status",
			topic:   "devices/42/x/status",
			want:    false,
		},
		{
			name:    "multi-level wildcard matches deep suffix",
			pattern: "devices/#",
			topic:   "devices/42/status/extra",
			want:    true,
		},
		{
			name:    "multi-level wildcard matches zero remaining tokens",
			pattern: "devices/#",
			topic:   "devices",
			want:    true,
		},
		{
			name:    "topic longer than pattern without hash",
			pattern: "a/b",
			topic:   "a/b/c",
			want:    false,
		},
		{
			name:    "pattern longer than topic",
			pattern: "a/b/c",
			topic:   "a/b",
			want:    false,
		},
		{
			name:    "bare hash matches everything",
			pattern: "#",
			topic:   "devices/42/data/temp",
			want:    true,
		},
		{
			name:    "hash in middle is malformed and matches nothing",
			pattern: "devices/#/status",
			topic:   "devices/42/status",
			want:    false,
		},
		{
			name:    "malformed pattern still matches itself literally",
			pattern: "devices/#/status",
			topic:   "devices/#/status",
			want:    true,
		},
		{
			name:    "multiple plus wildcards",
			pattern: "devices/+/data/+",
			topic:   "devices/42/data/temperature",
			want:    true,
		},
		{
			name:    "empty pattern vs non-empty topic",
			pattern: "",
			topic:   "devices",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.pattern, tt.topic); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
			}
		})
	}
}
