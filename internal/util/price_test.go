package util

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFloorToStep(t *testing.T) {
	tests := []struct {
		x, step, want string
	}{
		{"0.031245", "0.0001", "0.0312"},
		{"0.0312", "0.0001", "0.0312"},
		{"3199.999", "0.01", "3199.99"},
		{"5", "1", "5"},
		{"0.00009", "0.0001", "0"},
	}
	for _, tt := range tests {
		got := FloorToStep(d(tt.x), d(tt.step))
		assert.True(t, got.Equal(d(tt.want)), "floor(%s, %s) = %s, want %s", tt.x, tt.step, got, tt.want)
	}
}

func TestCeilToStep(t *testing.T) {
	tests := []struct {
		x, step, want string
	}{
		{"0.031245", "0.0001", "0.0313"},
		{"0.0312", "0.0001", "0.0312"},
		{"3199.991", "0.01", "3200"},
	}
	for _, tt := range tests {
		got := CeilToStep(d(tt.x), d(tt.step))
		assert.True(t, got.Equal(d(tt.want)), "ceil(%s, %s) = %s, want %s", tt.x, tt.step, got, tt.want)
	}
}

func TestStepGuards(t *testing.T) {
	x := d("1.2345")
	assert.True(t, FloorToStep(x, decimal.Zero).Equal(x))
	assert.True(t, CeilToStep(x, d("-0.01")).Equal(x))
}
