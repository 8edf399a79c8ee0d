package ttl

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseBankWord parses the value of a bank label: decimal, 0x hexadecimal or 0b binary.
func ParseBankWord(s string) (uint8, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	base := 10
	switch {
	case strings.HasPrefix(s, "0x"):
		base, s = 16, s[2:]
	case strings.HasPrefix(s, "0b"):
		base, s = 2, s[2:]
	}

	v, err := strconv.ParseUint(s, base, BankWidth)
	if err != nil {
		return 0, errors.Wrapf(ErrOutOfRange, "bank word %q", s)
	}
	return uint8(v), nil
}
