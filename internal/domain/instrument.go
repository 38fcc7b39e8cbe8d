package domain

import "fmt"

// ValidateInstrument checks an instrument identifier: a lowercase market
// prefix (e.g. "sh", "sz", "bj") followed by a numeric code, as in
// "sh600000". Malformed identifiers are configuration errors and are
// rejected before any I/O.
func ValidateInstrument(id string) error {
	if len(id) < 3 {
		return fmt.Errorf("instrument %q too short", id)
	}
	i := 0
	for ; i < len(id); i++ {
		c := id[i]
		if c < 'a' || c > 'z' {
			break
		}
	}
	if i == 0 || i == len(id) {
		return fmt.Errorf("instrument %q missing market prefix or code", id)
	}
	for ; i < len(id); i++ {
		c := id[i]
		if c < '0' || c > '9' {
			return fmt.Errorf("instrument %q contains invalid character %q", id, c)
		}
	}
	return nil
}

// InstrumentPrefix returns the grouping prefix used for bulk file layout:
// the market letters plus the first digit of the code (e.g. "sh6" for
// sh600000). Instruments sharing a prefix live in the same directory.
func InstrumentPrefix(id string) string {
	i := 0
	for ; i < len(id); i++ {
		if id[i] >= '0' && id[i] <= '9' {
			break
		}
	}
	if i < len(id) {
		return id[:i+1]
	}
	return id
}
