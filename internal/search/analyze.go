package search

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"partlogic/searchservice/internal/domain"
)

var vehicleMakes = map[string]struct{}{
	"ACURA": {}, "ALFA ROMEO": {}, "ASTON MARTIN": {}, "AUDI": {}, "BENTLEY": {},
	"BMW": {}, "BUICK": {}, "CADILLAC": {}, "CHEVROLET": {}, "CHEVY": {},
	"CHRYSLER": {}, "CITROEN": {}, "DACIA": {}, "DAEWOO": {}, "DAIHATSU": {},
	"DATSUN": {}, "DODGE": {}, "EAGLE": {}, "FERRARI": {}, "FIAT": {},
	"FORD": {}, "GENESIS": {}, "GEO": {}, "GMC": {}, "HONDA": {},
	"HUMMER": {}, "HYUNDAI": {}, "INFINITI": {}, "ISUZU": {}, "JAGUAR": {},
	"JEEP": {}, "KIA": {}, "LAMBORGHINI": {}, "LANCIA": {}, "LAND ROVER": {},
	"LEXUS": {}, "LINCOLN": {}, "LOTUS": {}, "MASERATI": {}, "MAZDA": {},
	"MCLAREN": {}, "MERCEDES": {}, "MERCEDES-BENZ": {}, "MERCURY": {}, "MINI": {},
	"MITSUBISHI": {}, "NISSAN": {}, "OLDSMOBILE": {}, "OPEL": {}, "PEUGEOT": {},
	"PLYMOUTH": {}, "PONTIAC": {}, "PORSCHE": {}, "RAM": {}, "RENAULT": {},
	"ROLLS-ROYCE": {}, "ROVER": {}, "SAAB": {}, "SATURN": {}, "SCION": {},
	"SEAT": {}, "SKODA": {}, "SMART": {}, "SUBARU": {}, "SUZUKI": {},
	"TESLA": {}, "TOYOTA": {}, "TRIUMPH": {}, "VAUXHALL": {}, "VOLKSWAGEN": {},
	"VW": {}, "VOLVO": {},
}

var partKeywords = map[string]struct{}{
	"BRAKE": {}, "BRAKES": {}, "PAD": {}, "PADS": {}, "ROTOR": {}, "ROTORS": {}, "CALIPER": {},
	"ENGINE": {}, "MOUNT": {}, "MOUNTS": {}, "MOTOR": {}, "TRANSMISSION": {}, "CLUTCH": {},
	"SUSPENSION": {}, "STRUT": {}, "STRUTS": {}, "SHOCK": {}, "SHOCKS": {}, "SPRING": {}, "SPRINGS": {},
	"FILTER": {}, "OIL": {}, "AIR": {}, "FUEL": {}, "CABIN": {}, "PUMP": {}, "WATER": {},
	"ALTERNATOR": {}, "STARTER": {}, "BATTERY": {}, "IGNITION": {}, "SPARK": {}, "PLUG": {}, "PLUGS": {},
	"BELT": {}, "BELTS": {}, "HOSE": {}, "HOSES": {}, "GASKET": {}, "GASKETS": {}, "SEAL": {}, "SEALS": {},
	"BEARING": {}, "BEARINGS": {}, "BUSHING": {}, "BUSHINGS": {}, "JOINT": {}, "JOINTS": {},
	"SENSOR": {}, "SWITCH": {}, "VALVE": {}, "THERMOSTAT": {}, "RADIATOR": {}, "CONDENSER": {},
	"HEADLIGHT": {}, "TAILLIGHT": {}, "MIRROR": {}, "WIPER": {}, "WIPERS": {},
	"WHEEL": {}, "TIRE": {}, "TIRES": {}, "HUB": {}, "AXLE": {}, "CV": {}, "DRIVESHAFT": {},
	"EXHAUST": {}, "MUFFLER": {}, "CATALYTIC": {}, "CONVERTER": {}, "MANIFOLD": {},
	"DOOR": {}, "WINDOW": {}, "FENDER": {}, "BUMPER": {}, "HOOD": {}, "TRUNK": {}, "LATCH": {},
	"CONTROL": {}, "ARM": {}, "ARMS": {}, "TIE": {}, "ROD": {}, "LINK": {}, "SWAY": {}, "BAR": {},
	"CERAMIC": {}, "ORGANIC": {}, "METALLIC": {}, "SEMI": {}, "FRONT": {}, "REAR": {}, "LEFT": {}, "RIGHT": {},
	"UPPER": {}, "LOWER": {}, "INNER": {}, "OUTER": {}, "SET": {}, "KIT": {}, "PAIR": {}, "ASSEMBLY": {},
}

var queryNoiseWords = map[string]struct{}{
	"OR": {}, "AND": {}, "FOR": {}, "THE": {}, "A": {}, "AN": {},
	"OEM": {}, "PART": {}, "PN": {}, "P/N": {}, "#": {}, "NO": {}, "NUMBER": {},
}

var (
	yearPattern           = regexp.MustCompile(`\b(19[6-9]\d|20[0-3]\d)\b`)
	purePartNumberPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-/\s]*$`)
)

// makesLongestFirst is the make list ordered longest-first so multi-word
// makes ("LAND ROVER") win over their prefixes.
var makesLongestFirst = func() []string {
	makes := make([]string, 0, len(vehicleMakes))
	for make := range vehicleMakes {
		makes = append(makes, make)
	}
	sort.Slice(makes, func(i, j int) bool {
		if len(makes[i]) != len(makes[j]) {
			return len(makes[i]) > len(makes[j])
		}
		return makes[i] < makes[j]
	})
	return makes
}()

// AnalyzeQuery classifies a raw query and extracts routing metadata.
// It is a pure function: no I/O, deterministic for a given input.
func AnalyzeQuery(query string) domain.QueryAnalysis {
	normalized := NormalizeQuery(query)
	extracted := ExtractPartNumbers(normalized)
	vehicle := detectVehicle(normalized)
	description := detectPartDescription(normalized)

	analysis := domain.QueryAnalysis{
		PartNumbers:     extracted,
		Vehicle:         vehicle,
		PartDescription: description,
	}

	switch {
	case isPartNumberQuery(normalized, extracted):
		analysis.QueryType = domain.QueryTypePartNumber
	case vehicle != nil:
		analysis.QueryType = domain.QueryTypeVehiclePart
	default:
		analysis.QueryType = domain.QueryTypeKeywords
	}
	return analysis
}

func detectVehicle(normalized string) *domain.VehicleHint {
	if yearMatch := yearPattern.FindStringSubmatchIndex(normalized); yearMatch != nil {
		year, _ := strconv.Atoi(normalized[yearMatch[2]:yearMatch[3]])
		afterYear := strings.TrimSpace(normalized[yearMatch[3]:])
		for _, make := range makesLongestFirst {
			if !strings.HasPrefix(afterYear, make) {
				continue
			}
			rest := strings.TrimSpace(afterYear[len(make):])
			model, trim := splitModelTrim(rest)
			return &domain.VehicleHint{
				Year:  year,
				Make:  canonicalMakeName(make),
				Model: model,
				Trim:  trim,
			}
		}
		// Year alone is too weak a signal.
	}

	for _, make := range makesLongestFirst {
		idx := wordIndex(normalized, make)
		if idx < 0 {
			continue
		}
		after := strings.TrimSpace(normalized[idx+len(make):])
		model, trim := splitModelTrim(after)
		if model == "" {
			continue
		}
		return &domain.VehicleHint{
			Make:  canonicalMakeName(make),
			Model: model,
			Trim:  trim,
		}
	}
	return nil
}

// splitModelTrim takes everything between the make and the first part
// keyword: the first token is the model, the rest is the trim.
func splitModelTrim(rest string) (string, string) {
	words := make([]string, 0, 4)
	for _, word := range strings.Fields(rest) {
		if _, isPart := partKeywords[word]; isPart {
			break
		}
		words = append(words, word)
	}
	if len(words) == 0 {
		return "", ""
	}
	model := titleWord(words[0])
	trim := ""
	if len(words) > 1 {
		trim = titleWord(strings.Join(words[1:], " "))
	}
	return model, trim
}

func detectPartDescription(normalized string) string {
	words := make([]string, 0, 4)
	for _, word := range strings.Fields(normalized) {
		if _, ok := partKeywords[word]; ok {
			words = append(words, strings.ToLower(word))
		}
	}
	return strings.Join(words, " ")
}

func isPartNumberQuery(normalized string, extracted []string) bool {
	if len(extracted) == 0 {
		return false
	}

	remaining := normalized
	for _, pn := range extracted {
		remaining = strings.ReplaceAll(remaining, pn, "")
	}
	remaining = strings.TrimSpace(strings.Trim(strings.TrimSpace(remaining), "-./,"))

	if remaining == "" {
		return true
	}

	meaningful := 0
	for _, word := range strings.Fields(remaining) {
		if _, noise := queryNoiseWords[word]; noise || len(word) <= 1 {
			continue
		}
		meaningful++
	}
	if meaningful == 0 {
		return true
	}

	if purePartNumberPattern.MatchString(normalized) {
		allDescriptive := true
		for _, word := range strings.Fields(normalized) {
			_, isPart := partKeywords[word]
			_, isMake := vehicleMakes[word]
			if !isPart && !isMake {
				allDescriptive = false
				break
			}
		}
		return !allDescriptive
	}
	return false
}

func canonicalMakeName(make string) string {
	switch make {
	case "VW":
		return "Volkswagen"
	case "CHEVY":
		return "Chevrolet"
	case "MERCEDES":
		return "Mercedes-Benz"
	default:
		return titleWord(make)
	}
}

func titleWord(value string) string {
	// cases.Caser carries transform state, so build one per call.
	return cases.Title(language.English).String(strings.ToLower(value))
}

// wordIndex finds needle in haystack at word boundaries, or -1.
func wordIndex(haystack, needle string) int {
	from := 0
	for {
		idx := strings.Index(haystack[from:], needle)
		if idx < 0 {
			return -1
		}
		idx += from
		end := idx + len(needle)
		beforeOK := idx == 0 || !isWordByte(haystack[idx-1])
		afterOK := end == len(haystack) || !isWordByte(haystack[end])
		if beforeOK && afterOK {
			return idx
		}
		from = idx + 1
	}
}

func isWordByte(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
