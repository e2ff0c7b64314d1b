package validation

import "github.com/firesci/debrisflow/pkg/gis"

// FireData names the spatial inputs of one fire. Empty paths are skipped.
type FireData struct {
	DEM       string
	Perimeter string
	DNBR      string
}

// FireResult aggregates the component results plus the cross-file CRS check.
type FireResult struct {
	FireValid bool
	CRSMatch  bool
	DEM       *Result
	Perimeter *Result
	DNBR      *Result
}

// ValidateFire validates every provided component and then enforces CRS
// consistency across them: any two defined but different reference systems
// invalidate the whole fire, even when each file passes alone.
func ValidateFire(data FireData) FireResult {
	result := FireResult{FireValid: true, CRSMatch: true}

	if data.DEM != "" {
		r := ValidateDEM(data.DEM)
		result.DEM = &r
		if !r.Valid {
			result.FireValid = false
		}
	}
	if data.Perimeter != "" {
		r := ValidatePerimeter(data.Perimeter)
		result.Perimeter = &r
		if !r.Valid {
			result.FireValid = false
		}
	}
	if data.DNBR != "" {
		r := ValidateDNBR(data.DNBR)
		result.DNBR = &r
		if !r.Valid {
			result.FireValid = false
		}
	}

	var crsValues []string
	for _, r := range []*Result{result.DEM, result.Perimeter, result.DNBR} {
		if r != nil && r.Metadata.CRS != "" {
			crsValues = append(crsValues, r.Metadata.CRS)
		}
	}
	if !CRSConsistent(crsValues...) {
		result.CRSMatch = false
		result.FireValid = false
	}

	return result
}

// CRSConsistent reports whether every definition refers to the same reference
// system. Definitions are compared semantically, so an authority code and the
// equivalent WKT count as the same system. Empty input is consistent.
func CRSConsistent(values ...string) bool {
	var representatives []string
	for _, value := range values {
		matched := false
		for _, rep := range representatives {
			if gis.SameCRS(rep, value) {
				matched = true
				break
			}
		}
		if !matched {
			representatives = append(representatives, value)
		}
	}
	return len(representatives) <= 1
}
