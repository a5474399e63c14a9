package cupid

import (
	"fmt"
	"strings"
)

// Discriminator returns the stored form of a numeric discriminator: four
// zero-padded digits, or nil for zero, which means the user has none.
func Discriminator(n int) (*string, error) {
	if n < 0 || n > 9999 {
		return nil, fmt.Errorf("discriminator %d out of range 0-9999", n)
	}
	if n == 0 {
		return nil, nil
	}
	s := fmt.Sprintf("%04d", n)
	return &s, nil
}

// ParseDiscriminator normalises a textual discriminator of one to four
// digits. "231" becomes "0231"; "", "0" and "0000" become nil.
func ParseDiscriminator(s string) (*string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !discriminatorPattern.MatchString(s) {
		return nil, fmt.Errorf("invalid discriminator %q (must be 1-4 digits)", s)
	}
	if strings.Trim(s, "0") == "" {
		return nil, nil
	}
	padded := strings.Repeat("0", 4-len(s)) + s
	return &padded, nil
}
