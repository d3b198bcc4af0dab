package matching

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Ratio is the normalized edit similarity of two strings in [0,1].
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings.
// Returns a value between 0.0 (no similarity) and 1.0 (exact match).
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	ra, rb := []rune(a), []rune(b)
	jaro := jaroRunes(ra, rb)

	// Winkler boost for a common prefix of up to four runes
	prefixLen := 0
	for i := 0; i < len(ra) && i < len(rb) && i < 4; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefixLen++
	}

	return jaro + float64(prefixLen)*0.1*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return jaroRunes([]rune(a), []rune(b))
}

func jaroRunes(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(max(len(a), len(b))/2-1, 0)

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	for i := range a {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := range a {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Soundex calculates the Soundex encoding of a string.
// Letters outside A-Z are treated like vowels.
func Soundex(str string) string {
	str = strings.ToUpper(strings.TrimSpace(str))

	var first rune
	var rest []rune
	for _, r := range str {
		if !unicode.IsLetter(r) {
			continue
		}
		if first == 0 {
			first = r
			continue
		}
		rest = append(rest, r)
	}
	if first == 0 {
		return ""
	}

	var result strings.Builder
	result.WriteRune(first)
	n := 1
	prevCode := soundexCode(first)

	for _, r := range rest {
		if n >= 4 {
			break
		}
		code := soundexCode(r)
		if code != '0' && code != prevCode {
			result.WriteByte(code)
			n++
		}
		// H and W do not separate letters with the same code
		if r != 'H' && r != 'W' {
			prevCode = code
		}
	}

	for ; n < 4; n++ {
		result.WriteByte('0')
	}
	return result.String()
}

func soundexCode(char rune) byte {
	switch char {
	case 'B', 'F', 'P', 'V':
		return '1'
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return '2'
	case 'D', 'T':
		return '3'
	case 'L':
		return '4'
	case 'M', 'N':
		return '5'
	case 'R':
		return '6'
	default:
		return '0'
	}
}

// DateDecay is exp(-|a-b| / scale); 1.0 for the same day
func DateDecay(a, b time.Time, scale time.Duration) float64 {
	if scale <= 0 {
		scale = 365 * 24 * time.Hour
	}
	diff := math.Abs(float64(a.Sub(b)))
	return math.Exp(-diff / float64(scale))
}

// LogRatio compares two positive magnitudes: 1.0 when equal, falling with |log(a/b)|.
// Non-positive inputs are shifted by one so that zero levels stay comparable.
func LogRatio(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		a, b = a+1, b+1
	}
	if a <= 0 || b <= 0 {
		return 0.0
	}
	return 1.0 / (1.0 + math.Abs(math.Log(a/b)))
}
