package driver

import (
	"fmt"
	"strings"
	"unicode"
)

// Derived sub-fields are computed here from canonical customer input so
// the caller never re-enters portal-specific splits. A Turkish plate like
// "34ABC123" carries the region code in its first two digits; registration
// codes like "AB123456" split into a letter series and a number.
var deriveFuncs = map[string]func(string) (string, error){
	"plate_region":       derivePlateRegion,
	"plate_serial":       derivePlateSerial,
	"registration_serie": deriveRegistrationSerie,
	"registration_no":    deriveRegistrationNo,
}

// Derive applies the named derivation to a canonical value.
func Derive(name, value string) (string, error) {
	fn, ok := deriveFuncs[name]
	if !ok {
		return "", fmt.Errorf("unknown derive %q", name)
	}
	return fn(value)
}

func normalizePlate(plate string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(plate), " ", ""))
}

func derivePlateRegion(plate string) (string, error) {
	p := normalizePlate(plate)
	if len(p) < 5 {
		return "", fmt.Errorf("plate %q too short", plate)
	}
	region := p[:2]
	for _, r := range region {
		if !unicode.IsDigit(r) {
			return "", fmt.Errorf("plate %q has no numeric region code", plate)
		}
	}
	return region, nil
}

func derivePlateSerial(plate string) (string, error) {
	p := normalizePlate(plate)
	if len(p) < 5 {
		return "", fmt.Errorf("plate %q too short", plate)
	}
	return p[2:], nil
}

func deriveRegistrationSerie(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	i := 0
	for i < len(c) && unicode.IsLetter(rune(c[i])) {
		i++
	}
	if i == 0 {
		return "", fmt.Errorf("registration code %q has no letter series", code)
	}
	return c[:i], nil
}

func deriveRegistrationNo(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	i := 0
	for i < len(c) && unicode.IsLetter(rune(c[i])) {
		i++
	}
	if i >= len(c) {
		return "", fmt.Errorf("registration code %q has no number part", code)
	}
	return c[i:], nil
}
