package languages

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "es", want: "es"},
		{in: " ES ", want: "es"},
		{in: "pt_br", want: "pt-BR"},
		{in: "", wantErr: true},
		{in: "not a tag", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q) expected error, got %q", tt.in, got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("Normalize(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
	if _, err := Normalize("  "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Normalize(blank) error = %v, want ErrEmpty", err)
	}
}

func TestSuggest(t *testing.T) {
	tests := []struct {
		name    string
		locale  string
		country string
		want    string
	}{
		{name: "accept language", locale: "fr-CA,fr;q=0.9,en;q=0.5", want: "fr"},
		{name: "country fallback", country: "JP", want: "ja"},
		{name: "brazil", country: "BR", want: "pt"},
		{name: "unsupported locale falls to country", locale: "ko", country: "MX", want: "es"},
		{name: "nothing", want: "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Suggest(tt.locale, tt.country); got != tt.want {
				t.Fatalf("Suggest(%q, %q) = %q, want %q", tt.locale, tt.country, got, tt.want)
			}
		})
	}
}
