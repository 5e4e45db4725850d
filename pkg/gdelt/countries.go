package gdelt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Country is an accepted entity: a short stable code and a display name.
// Reference data, loaded once before any record ingestion and never mutated.
type Country struct {
	Code string
	Name string
}

// ReadCountries parses the tab-separated entity reference file (Code\tName,
// one row per accepted entity). Codes must be exactly three characters.
func ReadCountries(r io.Reader) ([]Country, error) {
	scanner := bufio.NewScanner(r)

	var countries []Country
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		code, name, found := strings.Cut(line, "\t")
		if !found {
			return nil, fmt.Errorf("line %d: expected Code\\tName, found %q", lineNum, line)
		}
		if len(code) != 3 {
			return nil, fmt.Errorf("line %d: country code %q must be three characters long", lineNum, code)
		}
		countries = append(countries, Country{Code: code, Name: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read country file: %w", err)
	}
	return countries, nil
}

// CountryCodes projects the code column of the reference set, preserving
// order. The result is the immutable accepted-entity snapshot handed to the
// normalizer.
func CountryCodes(countries []Country) []string {
	codes := make([]string, 0, len(countries))
	for _, country := range countries {
		codes = append(codes, country.Code)
	}
	return codes
}
