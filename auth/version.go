package auth

import (
	"strconv"
	"strings"
)

// Protocol version thresholds. All gates are strict "later than" checks:
// a response at exactly the threshold version does not pass the gate.
const (
	// versionDecryptThreshold gates secret decryption. At or below it,
	// secrets in the response are used as given.
	versionDecryptThreshold = "1.1.0"

	// versionHubURLThreshold gates adopting the payload's hub URL over the
	// default Gaia hub.
	versionHubURLThreshold = "1.2.0"

	// versionAssociationThreshold gates adopting the payload's Gaia
	// association token.
	versionAssociationThreshold = "1.3.0"

	// versionAPIOverrideThreshold gates adopting the payload's core API
	// endpoint override.
	versionAPIOverrideThreshold = "1.3.0"
)

// isLaterVersion reports whether version v is strictly later than the
// threshold version. Versions are dotted integer fields; missing fields
// compare as zero, and an empty v compares as "0.0.0". Non-numeric fields
// compare as zero, so a garbage version never passes a gate.
func isLaterVersion(v, threshold string) bool {
	vf := versionFields(v)
	tf := versionFields(threshold)
	for len(vf) < len(tf) {
		vf = append(vf, 0)
	}
	for len(tf) < len(vf) {
		tf = append(tf, 0)
	}
	for i := range vf {
		switch {
		case vf[i] > tf[i]:
			return true
		case vf[i] < tf[i]:
			return false
		}
	}
	return false
}

func versionFields(v string) []int {
	if v == "" {
		v = "0.0.0"
	}
	parts := strings.Split(v, ".")
	fields := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			n = 0
		}
		fields = append(fields, n)
	}
	return fields
}
