package canonical

import (
	"strconv"
	"strings"
)

// ParsedVehicle is the best-effort structured reading of a free-text
// vehicle description.
type ParsedVehicle struct {
	Year  int
	Make  string
	Model string
	Trim  string
}

func (p ParsedVehicle) Complete() bool {
	return p.Year > 0 && p.Make != "" && p.Model != ""
}

var canonicalMakes = map[string]string{
	"acura": "Acura", "audi": "Audi", "bmw": "BMW", "buick": "Buick",
	"cadillac": "Cadillac", "chevrolet": "Chevrolet", "chevy": "Chevrolet",
	"chrysler": "Chrysler", "dodge": "Dodge", "fiat": "Fiat", "ford": "Ford",
	"gmc": "GMC", "honda": "Honda", "hyundai": "Hyundai", "infiniti": "Infiniti",
	"jaguar": "Jaguar", "jeep": "Jeep", "kia": "Kia", "lexus": "Lexus",
	"lincoln": "Lincoln", "mazda": "Mazda", "mercedes": "Mercedes-Benz",
	"mercedes-benz": "Mercedes-Benz", "benz": "Mercedes-Benz", "mini": "Mini",
	"mitsubishi": "Mitsubishi", "nissan": "Nissan", "pontiac": "Pontiac",
	"porsche": "Porsche", "ram": "Ram", "saab": "Saab", "saturn": "Saturn",
	"subaru": "Subaru", "suzuki": "Suzuki", "tesla": "Tesla", "toyota": "Toyota",
	"volkswagen": "Volkswagen", "vw": "Volkswagen", "volvo": "Volvo",
}

// Drivetrain and body markers carry no identity; they are dropped before
// matching so "2015 Civic AWD" and "2015 Civic" normalize the same.
var noiseTokens = map[string]struct{}{
	"awd": {}, "4wd": {}, "fwd": {}, "rwd": {}, "2wd": {}, "4x4": {}, "4x2": {},
	"2dr": {}, "4dr": {}, "sedan": {}, "coupe": {}, "wagon": {}, "hatchback": {},
	"auto": {}, "automatic": {}, "manual": {}, "at": {}, "mt": {},
}

// NormalizeAliasText is the canonical form an alias is deduplicated on:
// lowercased, noise tokens removed, whitespace collapsed.
func NormalizeAliasText(raw string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	kept := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, noise := noiseTokens[field]; noise {
			continue
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, " ")
}

// CanonicalMake maps a make spelling or abbreviation to its canonical
// name; unknown makes come back empty.
func CanonicalMake(raw string) string {
	return canonicalMakes[strings.ToLower(strings.TrimSpace(raw))]
}

// ParseVehicleLoose extracts year, make, model and trim from free text.
// The year can appear before or after the make; the first token after
// the make is the model and any remainder is trim.
func ParseVehicleLoose(raw string) ParsedVehicle {
	fields := strings.Fields(NormalizeAliasText(raw))
	parsed := ParsedVehicle{}

	makeIndex := -1
	for i, field := range fields {
		if parsed.Year == 0 {
			if year := parseYearToken(field); year > 0 {
				parsed.Year = year
				continue
			}
		}
		if parsed.Make == "" {
			if canonical := CanonicalMake(field); canonical != "" {
				parsed.Make = canonical
				makeIndex = i
			}
		}
	}
	if makeIndex < 0 {
		return parsed
	}

	rest := make([]string, 0, len(fields))
	for i := makeIndex + 1; i < len(fields); i++ {
		if parseYearToken(fields[i]) > 0 {
			continue
		}
		rest = append(rest, fields[i])
	}
	if len(rest) > 0 {
		parsed.Model = titleToken(rest[0])
	}
	if len(rest) > 1 {
		trimFields := make([]string, 0, len(rest)-1)
		for _, field := range rest[1:] {
			trimFields = append(trimFields, titleToken(field))
		}
		parsed.Trim = strings.Join(trimFields, " ")
	}
	return parsed
}

func parseYearToken(field string) int {
	if len(field) != 4 {
		return 0
	}
	year, err := strconv.Atoi(field)
	if err != nil {
		return 0
	}
	if year < 1960 || year > 2039 {
		return 0
	}
	return year
}

func titleToken(value string) string {
	if value == "" {
		return ""
	}
	// Short alphanumeric model codes stay uppercase: x5, rx350, f150.
	hasDigit := false
	for _, r := range value {
		if r >= '0' && r <= '9' {
			hasDigit = true
			break
		}
	}
	if hasDigit || len(value) <= 3 {
		return strings.ToUpper(value)
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
