package resolver

import (
	"strings"
)

// ValidateCommand checks raw against the known command names of a module.
//
// Only the mnemonic (text before the first space) is compared. SCPI mnemonics
// may be written in short form (the uppercase letters only, e.g. "SUP:LED" for
// "SUP:LEd") or long form (any case). A command matches when its mnemonic, with
// lowercase letters stripped or uppercased, equals the short or long form of a
// known command. Digits and punctuation are never stripped.
func ValidateCommand(raw string, known []string) error {
	mnemonic := mnemonicOf(raw)

	candidates := make([]string, 0, 2)
	for _, c := range []string{stripLower(mnemonic), strings.ToUpper(mnemonic)} {
		if c != "" {
			candidates = append(candidates, c)
		}
	}

	for _, k := range known {
		name := mnemonicOf(k)
		short := stripLower(name)
		long := strings.ToUpper(name)
		for _, c := range candidates {
			if (short != "" && c == short) || (long != "" && c == long) {
				return nil
			}
		}
	}

	return &UnknownCommandError{Command: raw}
}

func mnemonicOf(s string) string {
	s = strings.TrimLeft(s, " \t")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return strings.TrimRight(s, "\r\n")
}

func stripLower(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return -1
		}
		return r
	}, s)
}
