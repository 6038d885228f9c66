package offers

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

var (
	timePattern          = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})[ \x{00A0}\x{202F}]?([AP]M)`)
	durationPattern      = regexp.MustCompile(`(\d{1,2})[ \x{00A0}]?hrs?(?:[ \x{00A0}]?(\d{1,2})[ \x{00A0}]?min)?`)
	emissionsPattern     = regexp.MustCompile(`(\d[\d,]*)[ \x{00A0}]?kg CO2e`)
	emissionsDiffPattern = regexp.MustCompile(`([+\-\x{2212}]?\d{1,3})[ \x{00A0}]?% emissions`)
	stopCountPattern     = regexp.MustCompile(`(\d+)[ \x{00A0}]?stops?`)
)

// ExtractTimes returns the departure and arrival times of a card. Repeated
// tokens (cards often render the same time twice) are collapsed before the
// first two distinct ones are taken. ok is false when fewer than two remain.
func ExtractTimes(text string) (departure, arrival string, ok bool) {
	var distinct []string
	for _, m := range timePattern.FindAllStringSubmatch(text, -1) {
		hour, err := strconv.Atoi(m[1])
		if err != nil || hour > 23 {
			continue
		}
		token := fmt.Sprintf("%d:%s %s", hour, m[2], strings.ToUpper(m[3]))
		if !containsString(distinct, token) {
			distinct = append(distinct, token)
		}
		if len(distinct) == 2 {
			return distinct[0], distinct[1], true
		}
	}
	return "", "", false
}

// ExtractDuration returns the total duration in minutes from "5 hr 25 min".
func ExtractDuration(text string) *int {
	m := durationPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	hours, _ := strconv.Atoi(m[1])
	minutes := 0
	if m[2] != "" {
		minutes, _ = strconv.Atoi(m[2])
	}
	return intPtr(hours*60 + minutes)
}

// AirportPattern compiles the airport matcher for a suffix dictionary. A
// match is an IATA code followed by a name that ends in one of the suffixes.
func AirportPattern(suffixes []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.TrimSpace(s)
		if s != "" {
			quoted = append(quoted, regexp.QuoteMeta(s))
		}
	}
	if len(quoted) == 0 {
		return nil, fmt.Errorf("airport suffix dictionary is empty")
	}
	// Longest first so "Aeropuerto" is preferred over a shorter prefix of it.
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })

	expr := `([A-Z]{3})([\p{L}\s\x{00A0}\-'\x{2019}./()]+?(?:` + strings.Join(quoted, "|") + `))`
	return regexp.Compile(expr)
}

// ExtractAirports returns the first two airports found with pattern.
func ExtractAirports(pattern *regexp.Regexp, text string) (departure, arrival AirportRef, ok bool) {
	matches := pattern.FindAllStringSubmatch(text, 2)
	if len(matches) < 2 {
		return AirportRef{}, AirportRef{}, false
	}
	departure = AirportRef{Code: matches[0][1], Name: cleanName(matches[0][2])}
	arrival = AirportRef{Code: matches[1][1], Name: cleanName(matches[1][2])}
	return departure, arrival, true
}

// PricePattern compiles the price matcher for an ISO 4217 currency code.
func PricePattern(code string) (*regexp.Regexp, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("invalid currency code %q: %w", code, err)
	}
	return regexp.Compile(regexp.QuoteMeta(unit.String()) + `[ \x{00A0}\x{202F}]?(\d[\d.,]*)`)
}

// ExtractPrice returns the price as an integer amount. Both "." and ","
// are treated as thousands separators, so "1.234.567" and "1,234,567"
// read the same.
func ExtractPrice(pattern *regexp.Regexp, text string) *int {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	digits := strings.NewReplacer(".", "", ",", "").Replace(m[1])
	v, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return intPtr(v)
}

// ExtractEmissions returns the absolute emissions in kg CO2e.
func ExtractEmissions(text string) *int {
	m := emissionsPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return intPtr(v)
}

// ExtractEmissionsDiff returns the signed percentage against the typical
// emissions for the route.
func ExtractEmissionsDiff(text string) *int {
	m := emissionsDiffPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(strings.Replace(m[1], "\u2212", "-", 1))
	if err != nil {
		return nil
	}
	return intPtr(v)
}

// ExtractStops classifies the stop count of a card.
func ExtractStops(text string) Stops {
	if strings.Contains(text, "Nonstop") {
		return StopsNonstop
	}
	if m := stopCountPattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return StopCount(n)
		}
	}
	return StopsUnknown
}

func cleanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
