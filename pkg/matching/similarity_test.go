package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.Equal(t, 1.0, Ratio("JR 1", "JR 1"))
	assert.InDelta(t, 1-3.0/7.0, Ratio("kitten", "sitting"), 1e-9)
	assert.InDelta(t, 1-1.0/9.0, Ratio("Pyhäjärvi", "Pyhajärvi"), 1e-9, "runes, not bytes")
	assert.Equal(t, 0.0, Ratio("abc", ""))
}

func TestJaroWinkler(t *testing.T) {
	assert.Equal(t, 1.0, JaroWinkler("Virtanen", "Virtanen"))
	assert.InDelta(t, 0.9611, JaroWinkler("MARTHA", "MARHTA"), 1e-4)
	assert.InDelta(t, 0.8133, JaroWinkler("DIXON", "DICKSONX"), 1e-4)
	assert.Equal(t, 0.0, JaroWinkler("abc", ""))
	assert.Equal(t, JaroWinkler("Mäkinen", "Makinen"), JaroWinkler("Makinen", "Mäkinen"))
}

func TestSoundex(t *testing.T) {
	tests := map[string]string{
		"Robert":   "R163",
		"Rupert":   "R163",
		"Ashcraft": "A261",
		"Tymczak":  "T522",
		"Pfister":  "P236",
		"Lee":      "L000",
		" ":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Soundex(in), in)
	}
}

func TestDateDecay(t *testing.T) {
	d := time.Date(1942, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1.0, DateDecay(d, d, 0))
	year := DateDecay(d, d.AddDate(1, 0, 0), 365*24*time.Hour)
	assert.InDelta(t, 0.3679, year, 1e-3)
	assert.Equal(t, DateDecay(d, d.AddDate(0, 0, 10), 0), DateDecay(d.AddDate(0, 0, 10), d, 0))
}

func TestLogRatio(t *testing.T) {
	assert.Equal(t, 1.0, LogRatio(4, 4))
	assert.Equal(t, LogRatio(2, 8), LogRatio(8, 2))
	assert.Greater(t, LogRatio(4, 5), LogRatio(4, 12))
	assert.Equal(t, 1.0, LogRatio(0, 0))
}
