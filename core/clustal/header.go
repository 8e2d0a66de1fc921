package clustal

import (
	"regexp"
	"strings"
)

// programs lists the header tokens accepted on the first line, in match order.
var programs = []string{"CLUSTAL", "PROBCONS", "MUSCLE", "MSAPROBS", "Kalign"}

var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)+`)

// Programs returns the accepted header tokens in match order.
func Programs() []string {
	out := make([]string, len(programs))
	copy(out, programs)
	return out
}

// DetectHeader reports which program produced an alignment whose first line
// is line. Matching is a case-sensitive prefix match.
func DetectHeader(line string) (string, bool) {
	for _, p := range programs {
		if strings.HasPrefix(line, p) {
			return p, true
		}
	}
	return "", false
}

// HeaderVersion returns the first dotted version number in line, such as
// "1.81" in "CLUSTAL X (1.81) multiple sequence alignment".
func HeaderVersion(line string) (string, bool) {
	v := versionPattern.FindString(line)
	return v, v != ""
}
