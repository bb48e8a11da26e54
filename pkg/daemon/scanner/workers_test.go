package scanner

import (
	"runtime"
	"testing"
)

func TestWorkers(t *testing.T) {
	tests := []struct {
		name     string
		cpus     int
		override int
		want     int
	}{
		{"small system gets the minimum", 2, 0, minWalkWorkers},
		{"one worker per core", 12, 0, 12},
		{"capped", 256, 0, maxWalkWorkers},
		{"override", 12, 3, 3},
		{"override capped", 12, 500, maxWalkWorkers},
		{"negative override ignored", 16, -1, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Workers(tt.cpus, tt.override); got != tt.want {
				t.Errorf("Workers(%d, %d) = %d, want %d", tt.cpus, tt.override, got, tt.want)
			}
		})
	}
}

func TestNewDefaultsWorkers(t *testing.T) {
	s := New(nil, Options{Home: t.TempDir()})
	if want := Workers(runtime.NumCPU(), 0); s.opts.Workers != want {
		t.Errorf("Workers = %d, want %d", s.opts.Workers, want)
	}
}
