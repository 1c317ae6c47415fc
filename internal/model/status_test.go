package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf_Boundaries(t *testing.T) {
	tests := []struct {
		balance float64
		want    Status
	}{
		{250, StatusAbundant},
		{100.01, StatusAbundant},
		{100.0, StatusOK},
		{50, StatusOK},
		{10.01, StatusOK},
		{10.0, StatusWarning},
		{3.2, StatusWarning},
		{0, StatusWarning},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.balance), "balance %.2f", tt.balance)
	}
}

func TestIsLow(t *testing.T) {
	tests := []struct {
		light, ac float64
		want      bool
	}{
		{5.0, 50.0, true},
		{50.0, 5.0, true},
		{10.0, 200.0, true},
		{200.0, 10.0, true},
		{10.01, 10.01, false},
		{100.0, 100.0, false},
	}
	for _, tt := range tests {
		got := IsLow(Reading{Light: tt.light, AC: tt.ac})
		assert.Equal(t, tt.want, got, "light=%.2f ac=%.2f", tt.light, tt.ac)
	}
}

func TestFormatBalance(t *testing.T) {
	assert.Equal(t, "5.0", FormatBalance(5))
	assert.Equal(t, "99.5", FormatBalance(99.5))
	assert.Equal(t, "0.0", FormatBalance(0))
	assert.Equal(t, "123.45", FormatBalance(123.45))
}

func TestNewReading_UsesLocation(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	at := time.Date(2024, 10, 31, 20, 30, 0, 0, time.UTC)

	r := NewReading(at, loc, 12.5, 30)

	assert.Equal(t, "11-01 04:30:00", r.Time)
	assert.Equal(t, "2024-11", r.Period())
	assert.Equal(t, 12.5, r.Light)
	assert.Equal(t, 30.0, r.AC)
}
