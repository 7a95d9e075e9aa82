package privacy

import (
	"fmt"
	"math"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

// AuditConfig holds the thresholds an Auditor applies to every check.
type AuditConfig struct {
	K                     int     `json:"k" yaml:"k" mapstructure:"k"`
	L                     int     `json:"l" yaml:"l" mapstructure:"l"`
	T                     float64 `json:"t" yaml:"t" mapstructure:"t"`
	RecommendedMaxEpsilon float64 `json:"recommended_max_epsilon" yaml:"recommended_max_epsilon" mapstructure:"recommended_max_epsilon"`
}

// DefaultAuditConfig returns k=5, l=3, t=0.2 and a recommended epsilon
// ceiling of 1.0.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		K:                     constants.DefaultK,
		L:                     constants.DefaultL,
		T:                     constants.DefaultT,
		RecommendedMaxEpsilon: constants.DefaultRecommendedMaxEpsilon,
	}
}

// Validate checks every threshold against its domain.
func (c *AuditConfig) Validate() error {
	if err := validateK(c.K); err != nil {
		return err
	}
	if err := validateL(c.L); err != nil {
		return err
	}
	if err := validateT(c.T); err != nil {
		return err
	}
	return validateRecommendedMax(c.RecommendedMaxEpsilon)
}

func validateK(k int) error {
	if k < 1 {
		return errors.NewInvalidInputError("k must be at least 1").
			WithDetails(fmt.Sprintf("got k=%d", k)).WithContext("k", k)
	}
	return nil
}

func validateL(l int) error {
	if l < 1 {
		return errors.NewInvalidInputError("l must be at least 1").
			WithDetails(fmt.Sprintf("got l=%d", l)).WithContext("l", l)
	}
	return nil
}

func validateT(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return errors.NewInvalidInputError("t must be within [0, 1]").
			WithDetails(fmt.Sprintf("got t=%g", t)).WithContext("t", t)
	}
	return nil
}

func validateRecommendedMax(max float64) error {
	if math.IsNaN(max) || math.IsInf(max, 0) || max <= 0 {
		return errors.NewInvalidInputError("recommended max epsilon must be a finite, positive number").
			WithDetails(fmt.Sprintf("got %g", max))
	}
	return nil
}
