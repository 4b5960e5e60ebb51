package core

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToNum(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1,5", 1.5},
		{"2.75", 2.75},
		{"abc", 0},
		{"", 0},
		{"   ", 0},
		{"1.234.567", 1234567},
		{"1,234,567", 1234567},
		{"1.234.567,89", 1234567.89},
		{"1,234,567.89", 1234567.89},
		{"(1.500,25)", -1500.25},
		{"-42", -42},
		{"Rp 250.000,00", 250000},
		{"12 kg", 12},
		{"1.500", 1.5},
		{"0", 0},
		{"-", 0},
		{",", 0},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ToNum(tc.in))
		})
	}
}

func TestToNumIdempotent(t *testing.T) {
	inputs := []string{
		"0", "1", "1,5", "2.75", "1.234", "1.234.567,89", "-3,25", "(7,5)",
		"1000000", "0.000123", "123456789.125", "abc",
	}
	for _, in := range inputs {
		first := ToNum(in)
		again := ToNum(strconv.FormatFloat(first, 'f', -1, 64))
		if again != first {
			t.Errorf("ToNum(%q) = %v but reparsing gives %v", in, first, again)
		}
	}
}

func TestParseNumRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "--", ".,"} {
		_, err := ParseNum(in)
		if !errors.Is(err, ErrInvalidNumber) {
			t.Errorf("ParseNum(%q) err = %v, want ErrInvalidNumber", in, err)
		}
	}
	v, err := ParseNum("3,5")
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)
}

func TestFormatRupiah(t *testing.T) {
	cases := map[float64]string{
		0:          "Rp 0",
		999:        "Rp 999",
		1000:       "Rp 1.000",
		1234567.6:  "Rp 1.234.568",
		-15000:     "-Rp 15.000",
		1000000000: "Rp 1.000.000.000",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatRupiah(in), "FormatRupiah(%v)", in)
	}
}

func TestFormatDecimal(t *testing.T) {
	assert.Equal(t, "1,25", FormatDecimal(1.25, 2))
	assert.Equal(t, "2", FormatDecimal(2.0, 2))
	assert.Equal(t, "12.345,7", FormatDecimal(12345.67, 1))
	assert.Equal(t, "-0,5", FormatDecimal(-0.5, 2))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0, Ratio(10, 0))
	assert.Equal(t, 2.5, Ratio(5, 2))
}

func TestEnsureDates(t *testing.T) {
	cases := []struct {
		start, end string
		ok         bool
	}{
		{"2025-01-01", "2025-04-30", true},
		{"2025-01-01", "2025-01-01", true},
		{"2025-01-01T00:00:00Z", "2025-02-01", true},
		{"2025-02-01", "2025-01-31", false},
		{"2025-13-01", "2025-12-01", false},
		{"", "2025-01-01", false},
		{"2025-01-01", "kemarin", false},
	}
	for _, tc := range cases {
		err := EnsureDates(tc.start, tc.end)
		if tc.ok && err != nil {
			t.Errorf("EnsureDates(%q, %q) unexpected error: %v", tc.start, tc.end, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("EnsureDates(%q, %q) expected error", tc.start, tc.end)
		}
	}
	assert.ErrorIs(t, EnsureDates("2025-02-01", "2025-01-01"), ErrInvalidDates)
	assert.ErrorIs(t, EnsureDates("nope", "2025-01-01"), ErrInvalidDate)
}

func TestDateJSON(t *testing.T) {
	var s struct {
		D Date `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"2025-03-04"}`), &s))
	assert.Equal(t, "2025-03-04", s.D.String())

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-03-04"}`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`{"d":null}`), &s))
	assert.True(t, s.D.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"d":"04/03/2025"}`), &s))
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 1, NewDate(2025, 1, 1).DaysUntil(NewDate(2025, 1, 1)))
	assert.Equal(t, 365, NewDate(2025, 1, 1).DaysUntil(NewDate(2025, 12, 31)))
	assert.Equal(t, 0, NewDate(2025, 2, 1).DaysUntil(NewDate(2025, 1, 1)))
}
