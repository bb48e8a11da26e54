package filter

import (
	"errors"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "7d", want: 7 * Day},
		{input: "30d", want: 30 * Day},
		{input: "3mo", want: 3 * Month},
		{input: "2w", want: 2 * Week},
		{input: "1y", want: Year},
		{input: "1h30m", want: 90 * time.Minute},
		{input: "", wantErr: true},
		{input: "-1d", wantErr: true},
		{input: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCutoff(t *testing.T) {
	got, err := Cutoff("all", now)
	if err != nil || !got.IsZero() {
		t.Errorf("Cutoff(all) = %v, %v; want zero", got, err)
	}

	got, err = Cutoff("7d", now)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(-7 * Day); !got.Equal(want) {
		t.Errorf("Cutoff(7d) = %v, want %v", got, want)
	}

	if _, err := Cutoff("forever", now); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("Cutoff(forever) error = %v, want ErrInvalidDuration", err)
	}
}

func TestParseSortField(t *testing.T) {
	for in, want := range map[string]SortField{"": SortModified, "Path": SortPath, "size": SortSize} {
		got, err := ParseSortField(in)
		if err != nil || got != want {
			t.Errorf("ParseSortField(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseSortField("color"); !errors.Is(err, ErrInvalidSortField) {
		t.Errorf("expected ErrInvalidSortField, got %v", err)
	}
}
