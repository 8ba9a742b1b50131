// Package decay models the expected mass loss of a batch as it moves down the belt.
package decay

import (
	"fmt"
	"math"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/domain/models"
)

// WeightAt returns the expected remaining mass after week weeks at the given weekly rate,
// in full floating-point precision. Week 1 is the intake week and returns initialMass.
func WeightAt(week int, initialMass, rate float64) (float64, error) {
	if err := validate(week, initialMass, rate); err != nil {
		return 0, err
	}
	if week == 1 {
		return initialMass, nil
	}
	return initialMass * math.Pow(1-rate, float64(week-1)), nil
}

// MassAt is WeightAt rounded for persistence.
func MassAt(week int, initialMass, rate float64) (float64, error) {
	w, err := WeightAt(week, initialMass, rate)
	if err != nil {
		return 0, err
	}
	return Round(w), nil
}

// ExpectedFinalMass is the advisory end-of-cycle mass shown to operators.
// It is an empirical figure and does not follow the weekly decay curve.
func ExpectedFinalMass(initialMass float64) float64 {
	return Round(initialMass * models.ExpectedYieldFactor)
}

// Projection lists the rounded expected mass at every station.
func Projection(initialMass, rate float64) ([]models.StationProjection, error) {
	out := make([]models.StationProjection, 0, models.StationCount)
	for station := models.FirstStation; station <= models.StationCount; station++ {
		mass, err := MassAt(station, initialMass, rate)
		if err != nil {
			return nil, err
		}
		out = append(out, models.StationProjection{Station: station, Week: station, Mass: mass})
	}
	return out, nil
}

// ValidateRate checks rate against the accepted domain [0,1).
func ValidateRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate >= 1 {
		return apperr.Validation("decay", "", fmt.Sprintf("decay rate %v outside [0,1)", rate))
	}
	return nil
}

// Round rounds to two decimal places.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}

func validate(week int, initialMass, rate float64) error {
	if week < 1 {
		return apperr.Validation("decay", "", fmt.Sprintf("week %d must be >= 1", week))
	}
	if math.IsNaN(initialMass) || initialMass <= 0 {
		return apperr.Validation("decay", "", "initial mass must be positive")
	}
	return ValidateRate(rate)
}
