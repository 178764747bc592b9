package indication

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    Readings
		wantErr error
	}{
		{name: "bracketed string", input: "[123, 456, 789]", want: Readings{123, 456, 789}},
		{name: "bare string", input: "123, 456", want: Readings{123, 456}},
		{name: "single value string", input: "42", want: Readings{42}},
		{name: "padded string", input: "  [ 1 ,2 ]  ", want: Readings{1, 2}},
		{name: "integral float in string", input: "[12.0]", want: Readings{12}},
		{name: "tariff map string", input: "{1: 10, 2: 20}", want: Readings{10, 20}},
		{name: "list", input: []any{1, 2.0, "3"}, want: Readings{1, 2, 3}},
		{name: "int slice", input: []int{5, 6}, want: Readings{5, 6}},
		{name: "string keyed map", input: map[string]any{"t2": 20, "t1": 10}, want: Readings{10, 20}},
		{name: "int keyed map", input: map[int]any{1: 7}, want: Readings{7}},
		{name: "zero allowed", input: "[0]", want: Readings{0}},
		{name: "bare number", input: 99, want: Readings{99}},

		{name: "empty string", input: "", wantErr: ErrEmpty},
		{name: "empty list", input: "[]", wantErr: ErrEmpty},
		{name: "nil", input: nil, wantErr: ErrEmpty},
		{name: "too many", input: "[1, 2, 3, 4]", wantErr: ErrTooMany},
		{name: "negative", input: "[1, -2]", wantErr: ErrNegative},
		{name: "fractional", input: []any{1.5}, wantErr: ErrNotInteger},
		{name: "words", input: "[one, two]", wantErr: ErrFormat},
		{name: "map gap", input: map[string]any{"1": 1, "3": 3}, wantErr: ErrTariffKey},
		{name: "map key out of range", input: map[string]any{"4": 1}, wantErr: ErrTariffKey},
		{name: "map bad key", input: map[string]any{"peak": 1}, wantErr: ErrTariffKey},
		{name: "bool", input: true, wantErr: ErrFormat},
		{name: "nested list", input: "[[1]]", wantErr: ErrFormat},
		{name: "scalar text", input: "{", wantErr: ErrFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%v) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%v) unexpected error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		input       Readings
		incremental bool
		last        Readings
		submitted   Readings
		want        Readings
	}{
		{
			name:  "absolute",
			input: Readings{10, 20},
			last:  Readings{100, 200},
			want:  Readings{10, 20},
		},
		{
			name:        "incremental on last",
			input:       Readings{10, 20},
			incremental: true,
			last:        Readings{100, 200},
			want:        Readings{110, 220},
		},
		{
			name:        "submitted wins over last",
			input:       Readings{10, 20},
			incremental: true,
			last:        Readings{100, 200},
			submitted:   Readings{150, 0},
			want:        Readings{160, 220},
		},
		{
			name:        "no base",
			input:       Readings{10, 20, 30},
			incremental: true,
			last:        Readings{100},
			want:        Readings{110, 20, 30},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.input, tt.incremental, tt.last, tt.submitted)
			if !got.Equal(tt.want) {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	input := Readings{1, 2}
	Resolve(input, true, Readings{10, 10}, nil)

	if !input.Equal(Readings{1, 2}) {
		t.Errorf("input mutated to %v", input)
	}
}

func TestReadings_Format(t *testing.T) {
	r := Readings{1, 22, 333}

	if got := r.String(); got != "[1, 22, 333]" {
		t.Errorf("String() = %q", got)
	}

	tariffs := r.Tariffs()
	if tariffs["t1"] != 1 || tariffs["t2"] != 22 || tariffs["t3"] != 333 {
		t.Errorf("Tariffs() = %v", tariffs)
	}

	again, err := Parse(r.String())
	if err != nil || !again.Equal(r) {
		t.Errorf("Parse(String()) = %v, %v", again, err)
	}
}
