package bulk

import (
	consentmodels "cidledger/internal/consent/models"
	"cidledger/internal/oracle"
	"cidledger/pkg/domain"
	"cidledger/pkg/platform/validation"
)

// MaxBatchSize caps the number of CIDs a single bulk call may carry.
const MaxBatchSize = validation.MaxBulkCIDs

// LookupItem is one CID's registry and consent state. Status is empty when
// the identity was not found.
type LookupItem struct {
	CID           domain.CID                  `json:"cid"`
	Found         bool                        `json:"found"`
	Status        string                      `json:"status,omitempty"`
	ConsentStatus consentmodels.ConsentStatus `json:"consent_status"`
}

// CheckContext is the proposed use applied to every CID in a bulk check.
type CheckContext struct {
	UseType         string
	Region          string
	Modality        string
	ContentCategory string
	VerifyIntegrity bool
}

func (c CheckContext) request(cid domain.CID) oracle.CheckRequest {
	return oracle.CheckRequest{
		CID:             cid,
		UseType:         c.UseType,
		Region:          c.Region,
		Modality:        c.Modality,
		ContentCategory: c.ContentCategory,
		VerifyIntegrity: c.VerifyIntegrity,
	}
}

type CheckItem struct {
	CID           domain.CID                  `json:"cid"`
	Allowed       bool                        `json:"allowed"`
	ConsentStatus consentmodels.ConsentStatus `json:"consent_status"`
	Reason        oracle.Reason               `json:"reason"`
}

// Totals aggregates a bulk check. Denied excludes not-found identities.
type Totals struct {
	Total    int `json:"total"`
	Allowed  int `json:"allowed"`
	Denied   int `json:"denied"`
	NotFound int `json:"not_found"`
}

type CheckResult struct {
	Results []CheckItem `json:"results"`
	Totals  Totals      `json:"totals"`
}

func tally(items []CheckItem) Totals {
	totals := Totals{Total: len(items)}
	for _, item := range items {
		switch {
		case item.Allowed:
			totals.Allowed++
		case item.ConsentStatus == consentmodels.ConsentNotFound:
			totals.NotFound++
		default:
			totals.Denied++
		}
	}
	return totals
}
