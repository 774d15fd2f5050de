// Package vehiclenlp reads a vehicle out of free text such as
// "2019 chevy silverado" or "my '21 civic, VIN 2HGFC2F59MH512345".
package vehiclenlp

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/obdpulse/obdpulse/engine/domain"
)

// makeAliases maps nicknames to the make names used by domain.SupportedMakes.
var makeAliases = map[string]string{
	"chevy":         "Chevrolet",
	"merc":          "Mercedes",
	"benz":          "Mercedes",
	"mercedes-benz": "Mercedes",
	"vw":            "Volkswagen",
	"vdub":          "Volkswagen",
	"beemer":        "BMW",
	"bimmer":        "BMW",
}

var (
	makeRe     *regexp.Regexp
	yearFullRe = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	yearAbbrRe = regexp.MustCompile(`'(\d{2})\b`)
	vinRe      = regexp.MustCompile(`(?i)\b[A-HJ-NPR-Z0-9]{17}\b`)

	// uniqueModels maps a lowercase model to its make when only one make
	// sells it.
	uniqueModels = map[string]string{}
)

func init() {
	names := make([]string, 0, len(domain.SupportedMakes)+len(makeAliases))
	counts := map[string]int{}
	for mk, models := range domain.SupportedMakes {
		names = append(names, regexp.QuoteMeta(strings.ToLower(mk)))
		for _, m := range models {
			counts[strings.ToLower(m)]++
		}
	}
	for alias := range makeAliases {
		names = append(names, regexp.QuoteMeta(alias))
	}
	// Longest first so "mercedes-benz" wins over "mercedes".
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	makeRe = regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)(?:'s)?\b`)

	for mk, models := range domain.SupportedMakes {
		for _, m := range models {
			if ml := strings.ToLower(m); counts[ml] == 1 && len(ml) > 2 {
				uniqueModels[ml] = mk
			}
		}
	}
}

func canonicalMake(s string) string {
	lower := strings.ToLower(s)
	if mk, ok := makeAliases[lower]; ok {
		return mk
	}
	for mk := range domain.SupportedMakes {
		if strings.ToLower(mk) == lower {
			return mk
		}
	}
	return ""
}

// ParseVehicle extracts make, model, year and VIN from text. It reports
// false unless a supported make/model pair and a year were found.
func ParseVehicle(text string) (domain.Vehicle, bool) {
	var v domain.Vehicle
	if loc := makeRe.FindStringSubmatchIndex(text); loc != nil {
		v.Make = canonicalMake(text[loc[2]:loc[3]])
		if v.Make != "" {
			v.Model = modelPrefix(v.Make, text[loc[1]:])
		}
	}
	if v.Model == "" {
		if mk, model := standaloneModel(text); model != "" {
			v.Make, v.Model = mk, model
		}
	}
	v.Year = findYear(text)
	if m := vinRe.FindString(text); m != "" && domain.ValidVIN(m) {
		v.VIN = strings.ToUpper(m)
	}
	return v, v.Make != "" && v.Model != "" && v.Year != 0
}

// modelPrefix returns the longest model of mk that starts rest on a word
// boundary.
func modelPrefix(mk, rest string) string {
	rest = strings.ToLower(strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\''
	}))
	best := ""
	for _, m := range domain.SupportedMakes[mk] {
		ml := strings.ToLower(m)
		if !strings.HasPrefix(rest, ml) || len(m) <= len(best) {
			continue
		}
		if len(rest) > len(ml) && isWordRune(rune(rest[len(ml)])) {
			continue
		}
		best = m
	}
	return best
}

func standaloneModel(text string) (string, string) {
	lower := strings.ToLower(text)
	bestMake, bestModel, bestIdx := "", "", len(lower)+1
	for ml, mk := range uniqueModels {
		idx := strings.Index(lower, ml)
		if idx < 0 || idx > bestIdx {
			continue
		}
		if idx > 0 && isWordRune(rune(lower[idx-1])) {
			continue
		}
		if end := idx + len(ml); end < len(lower) && isWordRune(rune(lower[end])) {
			continue
		}
		if idx == bestIdx && len(ml) <= len(bestModel) {
			continue
		}
		v, _ := domain.CanonicalModel(mk, ml)
		bestMake, bestModel, bestIdx = v.Make, v.Model, idx
	}
	return bestMake, bestModel
}

func findYear(s string) int {
	if m := yearFullRe.FindStringSubmatch(s); m != nil {
		if y, _ := strconv.Atoi(m[1]); y >= domain.MinModelYear && y <= domain.MaxModelYear {
			return y
		}
	}
	if m := yearAbbrRe.FindStringSubmatch(s); m != nil {
		yy, _ := strconv.Atoi(m[1])
		switch {
		case 2000+yy <= domain.MaxModelYear:
			return 2000 + yy
		case yy >= 80:
			return 1900 + yy
		}
	}
	return 0
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
