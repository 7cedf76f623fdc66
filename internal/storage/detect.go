package storage

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// Classification is the result of deciding where a payload's authoritative
// bytes will live: in the database row (text) or only on disk (binary).
type Classification struct {
	IsBinary bool
	Text     string // UTF-8 text when !IsBinary; transcoded if the source was GBK
}

// Classify decides text vs binary, purely as a function of decodability:
// valid UTF-8 is text; otherwise a clean GBK decode (the legacy encoding of
// the classroom's existing material) is text, stored transcoded to UTF-8;
// anything else is binary. The decision is made once per submission; a
// re-submission reclassifies from scratch.
func Classify(payload []byte) Classification {
	if utf8.Valid(payload) {
		return Classification{Text: string(payload)}
	}

	// The GBK decoder substitutes U+FFFD for undecodable sequences instead
	// of returning an error, so a replacement rune in the output means the
	// payload was not actually GBK.
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(payload)
	if err == nil && !strings.ContainsRune(string(decoded), utf8.RuneError) {
		return Classification{Text: string(decoded)}
	}

	return Classification{IsBinary: true}
}
