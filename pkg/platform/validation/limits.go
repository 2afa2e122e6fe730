package validation

import (
	"fmt"

	dErrors "cidledger/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	MaxBodySize = 64 * 1024
)

// Collection limits
const (
	// MaxBulkCIDs is the maximum number of CIDs accepted by one bulk request.
	MaxBulkCIDs = 100

	// MaxScopeKeys bounds use_types and modalities entries per scope.
	MaxScopeKeys = 64

	// MaxRegions bounds geographic_scope.regions.
	MaxRegions = 250

	// MaxContentExclusions bounds content_exclusions.
	MaxContentExclusions = 64
)

// String length limits
const (
	MaxKeyLength          = 100
	MaxRegionLength       = 16
	MaxContactValueLength = 320
	MaxEvidenceRefLength  = 512
	MaxReasonLength       = 1000
	MaxUserAgentLength    = 512
)

// CheckSliceCount validates that a collection does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.Invalid(fieldName, fmt.Sprintf("too many entries: max %d allowed", max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.Invalid(fieldName, fmt.Sprintf("exceeds max length of %d", max))
	}
	return nil
}

// CheckEachStringLength validates every element of values against max.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for i, v := range values {
		if len(v) > max {
			return dErrors.Invalid(fmt.Sprintf("%s[%d]", fieldName, i), fmt.Sprintf("exceeds max length of %d", max))
		}
	}
	return nil
}

// CheckMapKeys validates entry count and key lengths of a flag map.
func CheckMapKeys(fieldName string, m map[string]bool, maxCount, maxKeyLen int) error {
	if err := CheckSliceCount(fieldName, len(m), maxCount); err != nil {
		return err
	}
	for k := range m {
		if k == "" {
			return dErrors.Invalid(fieldName, "keys must not be empty")
		}
		if len(k) > maxKeyLen {
			return dErrors.Invalid(fieldName, fmt.Sprintf("key exceeds max length of %d", maxKeyLen))
		}
	}
	return nil
}
