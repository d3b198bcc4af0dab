package normalizers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "jalkaväkirykmentti 1", ApplyChain("  JALKAVÄKIRYKMENTTI   1 ", "casefold", "collapse_whitespace"))
	assert.Equal(t, "unchanged", Apply("unchanged", "no_such_normalizer"))
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Alikersantti", Capitalize("ALIKERSANTTI"))
	assert.Equal(t, "Ärrä", Capitalize("äRRÄ"))
	assert.Equal(t, "", Capitalize(""))
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, NormalizeLabel("Pyhäjärvi  Vl"), NormalizeLabel("PYHÄJÄRVI VL"))
}

func TestHarmonizeFamilyName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "uppercase", in: "VIRTANEN", want: "Virtanen"},
		{name: "previous name marker", in: "VIRTANEN E. LINDQVIST", want: "Virtanen (ent. Lindqvist)"},
		{name: "long previous name marker", in: "KORHONEN ENT. NYMAN", want: "Korhonen (ent. Nyman)"},
		{name: "ocr zero", in: "K0RHONEN", want: "Korhonen"},
		{name: "nobility particle", in: "VON WRIGHT", want: "von Wright"},
		{name: "percent separator", in: "AHO%AHONEN", want: "Aho/Ahonen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HarmonizeFamilyName(tt.in))
		})
	}
}

func TestStripPreviousName(t *testing.T) {
	assert.Equal(t, "Virtanen Lindqvist", StripPreviousName("Virtanen (ent. Lindqvist)"))
	assert.Equal(t, "Virtanen", StripPreviousName("Virtanen"))
}

func TestCleanLiteral(t *testing.T) {
	assert.Equal(t, "1944-04-02", CleanLiteral(`"1944-04-02"^^<http://www.w3.org/2001/XMLSchema#date>`))
	assert.Equal(t, "Sotamies", CleanLiteral(`"Sotamies"@fi`))
	assert.Equal(t, "http://ldf.fi/warsa/actors/ranks/Sotamies", CleanLiteral("<http://ldf.fi/warsa/actors/ranks/Sotamies>"))
	assert.Equal(t, "JR 1", CleanLiteral("'JR 1'"))
}

func TestSplitList(t *testing.T) {
	got := SplitList([]string{"JR 1 || Jalkaväkirykmentti 1", `"1. Divisioona"`})
	assert.Equal(t, []string{"JR 1", "Jalkaväkirykmentti 1", "1. Divisioona"}, got)
}

func TestParseDate(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	t.Run("iso date", func(t *testing.T) {
		got, err := ParseDate("1944-04-02")
		require.NoError(t, err)
		assert.Equal(t, date(1944, time.April, 2), got)
	})

	t.Run("iso date with quoting artifacts", func(t *testing.T) {
		got, err := ParseDate(`"1944-04-02"^^xsd:date`)
		require.NoError(t, err)
		assert.Equal(t, date(1944, time.April, 2), got)
	})

	t.Run("finnish format with letter O", func(t *testing.T) {
		got, err := ParseDate("O2.O4.1944")
		require.NoError(t, err)
		assert.Equal(t, date(1944, time.April, 2), got)
	})

	t.Run("finnish format without padding", func(t *testing.T) {
		got, err := ParseDate("2,4.1944")
		require.NoError(t, err)
		assert.Equal(t, date(1944, time.April, 2), got)
	})

	t.Run("century slip", func(t *testing.T) {
		got, err := ParseDate("24.11.0941")
		require.NoError(t, err)
		assert.Equal(t, date(1941, time.November, 24), got)
	})

	t.Run("unknown placeholders", func(t *testing.T) {
		for _, raw := range []string{"", "xx.xx.xxxx", "XX.XX.XX", "xx.04.1944"} {
			_, err := ParseDate(raw)
			assert.ErrorIs(t, err, ErrUnknownDate, raw)
		}
	})

	t.Run("too early", func(t *testing.T) {
		_, err := ParseDate("1812-01-01")
		assert.ErrorIs(t, err, ErrInvalidDate)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseDate("talvella")
		assert.ErrorIs(t, err, ErrInvalidDate)
	})
}

func TestInWartime(t *testing.T) {
	assert.True(t, InWartime(time.Date(1941, 11, 24, 0, 0, 0, 0, time.UTC)))
	assert.False(t, InWartime(time.Date(1946, 1, 1, 0, 0, 0, 0, time.UTC)))
}
