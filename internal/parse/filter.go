package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/masterfile-cli/internal/prompt"
)

// hedgePhrases mark values where the model admitted it could not read the
// drawing. Matching is case-insensitive substring.
var hedgePhrases = []string{
	"not found",
	"no corresponding",
	"could not find",
	"couldn't find",
	"cannot be determined",
	"can not be determined",
	"cannot determine",
	"illegible",
	"material specifications present but",
	"not specified",
	"not visible",
	"not legible",
	"not available",
	"not provided",
	"not shown",
	"not clear",
	"unclear",
	"unable to",
	"no data",
	"none found",
	"not applicable",
	"not mentioned",
	"not stated",
	"not indicated",
	"no information",
}

// naToken matches "n/a" standing on its own, so codes that merely contain
// the letters stay intact.
var naToken = regexp.MustCompile(`(?i)(^|[^a-z0-9])n/a([^a-z0-9]|$)`)

// IsValid reports whether a model value may enter the data model.
func IsValid(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, prompt.NotFound) {
		return false
	}
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		return false
	}
	if naToken.MatchString(v) {
		return false
	}
	lower := strings.ToLower(v)
	for _, phrase := range hedgePhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	return true
}

var (
	numberToken = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	nonNumeric  = regexp.MustCompile(`[^0-9.\-]`)
	// rangeMarker flags values that combine several quantities and are kept
	// verbatim even when only one number is present (e.g. "FV / 3.5").
	rangeMarker = regexp.MustCompile(`(?i)[~/&,+]|\bto\b|\bfv\b`)
)

// Canonicalize strips units and decoration from a temperature or pressure
// value when exactly one number remains. Ranges and anything that does not
// reduce to a single number are returned unchanged.
func Canonicalize(v string) string {
	v = strings.TrimSpace(v)
	if len(numberToken.FindAllString(v, -1)) != 1 || rangeMarker.MatchString(v) {
		return v
	}
	cleaned := strings.TrimSuffix(nonNumeric.ReplaceAllString(v, ""), ".")
	if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
		return v
	}
	return cleaned
}

var (
	insulationNo  = regexp.MustCompile(`(?i)^(?:no|none|nil|false|n|uninsulated|not insulated|without insulation)\b`)
	insulationYes = regexp.MustCompile(`(?i)^(?:yes|y|true|insulated)\b`)

	// A thickness or an insulating material means the component is insulated.
	insulationThickness = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:mm|cm|in\b|inch|")`)
	insulationMaterial  = regexp.MustCompile(`(?i)(?:mineral|rock|glass|slag)\s*wool|calcium\s*silicate|fib(?:er|re)\s*glass|cellular\s*glass|perlite|polyurethane|foam|lagging|heat\s*conservation|personnel\s*protection|hot\s*insulation|cold\s*insulation|acoustic`)
)

// CanonicalizeInsulation maps an insulation answer onto "yes" or "no". The
// second result is false when the value says neither.
func CanonicalizeInsulation(v string) (string, bool) {
	v = strings.TrimSpace(v)
	switch {
	case insulationNo.MatchString(v):
		return "no", true
	case insulationYes.MatchString(v),
		insulationThickness.MatchString(v),
		insulationMaterial.MatchString(v):
		return "yes", true
	default:
		return "", false
	}
}
