package riskmath

import (
	"testing"

	"trade-signal-engine-go/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestRiskAmount(t *testing.T) {
	testCases := []struct {
		name        string
		balance     float64
		riskPercent float64
		expected    float64
	}{
		{name: "One percent of 10k", balance: 10000, riskPercent: 1, expected: 100},
		{name: "Three percent tier", balance: 5000, riskPercent: 3, expected: 150},
		{name: "Zero balance", balance: 0, riskPercent: 2, expected: 0},
		{name: "Negative balance clamps to zero", balance: -1000, riskPercent: 2, expected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, RiskAmount(tc.balance, tc.riskPercent))
		})
	}
}

func TestRRToPrice(t *testing.T) {
	testCases := []struct {
		name        string
		direction   models.Direction
		entry       float64
		stop        float64
		target      float64
		expectedRR  float64
		expectError bool
	}{
		{
			name:      "BUY target above entry",
			direction: models.DirectionBuy,
			entry:     100, stop: 90, target: 130,
			expectedRR: 3.0,
		},
		{
			name:      "BUY at stop is exactly -1",
			direction: models.DirectionBuy,
			entry:     100, stop: 90, target: 90,
			expectedRR: -1.0,
		},
		{
			name:      "BUY partial target",
			direction: models.DirectionBuy,
			entry:     100, stop: 90, target: 115,
			expectedRR: 1.5,
		},
		{
			name:      "SELL target below entry",
			direction: models.DirectionSell,
			entry:     2000, stop: 2020, target: 1950,
			expectedRR: 2.5,
		},
		{
			name:      "SELL at stop is exactly -1",
			direction: models.DirectionSell,
			entry:     2000, stop: 2020, target: 2020,
			expectedRR: -1.0,
		},
		{
			name:      "SELL losing side is negative",
			direction: models.DirectionSell,
			entry:     2000, stop: 2020, target: 2010,
			expectedRR: -0.5,
		},
		{
			name:      "Entry equals stop is undefined",
			direction: models.DirectionBuy,
			entry:     1.2, stop: 1.2, target: 1.3,
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr, err := RRToPrice(tc.direction, tc.entry, tc.stop, tc.target)
			if tc.expectError {
				assert.ErrorIs(t, err, ErrDivisionUndefined)
				return
			}
			assert.NoError(t, err)
			assert.InDelta(t, tc.expectedRR, rr, 1e-9)
		})
	}
}

func TestMoneyFromRR(t *testing.T) {
	assert.Equal(t, 300.0, MoneyFromRR(200, 1.5))
	assert.Equal(t, -200.0, MoneyFromRR(200, -1))
	assert.Equal(t, 0.0, MoneyFromRR(200, 0))
}

func TestValidatePrices(t *testing.T) {
	testCases := []struct {
		name        string
		direction   models.Direction
		entry       float64
		stop        float64
		target      float64
		armed       bool
		expectError bool
	}{
		{name: "Valid BUY", direction: models.DirectionBuy, entry: 100, stop: 90, target: 130},
		{name: "Valid SELL", direction: models.DirectionSell, entry: 2000, stop: 2020, target: 1950},
		{name: "BUY stop above entry", direction: models.DirectionBuy, entry: 100, stop: 110, target: 130, expectError: true},
		{name: "BUY target below entry", direction: models.DirectionBuy, entry: 100, stop: 90, target: 95, expectError: true},
		{name: "SELL stop below entry", direction: models.DirectionSell, entry: 2000, stop: 1990, target: 1950, expectError: true},
		{name: "Armed breakeven BUY allowed", direction: models.DirectionBuy, entry: 100, stop: 100, target: 130, armed: true},
		{name: "Stop equal entry rejected when not armed", direction: models.DirectionBuy, entry: 100, stop: 100, target: 130, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePrices(tc.direction, tc.entry, tc.stop, tc.target, tc.armed)
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTargetPrice(t *testing.T) {
	assert.NoError(t, ValidateTargetPrice(models.DirectionBuy, 100, 115))
	assert.Error(t, ValidateTargetPrice(models.DirectionBuy, 100, 100))
	assert.Error(t, ValidateTargetPrice(models.DirectionBuy, 100, 95))
	assert.NoError(t, ValidateTargetPrice(models.DirectionSell, 2000, 1950))
	assert.Error(t, ValidateTargetPrice(models.DirectionSell, 2000, 2010))
}
