package normalizers

import (
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownDate is returned for blank or placeholder dates such as "xx.xx.1942"
	ErrUnknownDate = errors.New("unknown date")
	// ErrInvalidDate is returned for dates that cannot be parsed or are out of range
	ErrInvalidDate = errors.New("invalid date")

	isoDateRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)

	// WartimeStart and WartimeEnd bound the dates expected in casualty records
	WartimeStart = time.Date(1939, 11, 28, 0, 0, 0, 0, time.UTC)
	WartimeEnd   = time.Date(1945, 4, 25, 0, 0, 0, 0, time.UTC)
)

// MinValidYear is the earliest year accepted as a real date
const MinValidYear = 1840

// ParseDate parses an ISO date or a Finnish dd.mm.yyyy date.
// Known transcription slips are repaired: O for 0, comma for dot and 09xx/10xx centuries.
func ParseDate(raw string) (time.Time, error) {
	s := CleanLiteral(raw)
	if s == "" {
		return time.Time{}, ErrUnknownDate
	}

	if strings.Trim(strings.ToLower(strings.ReplaceAll(s, ".", "")), "x") == "" {
		return time.Time{}, ErrUnknownDate
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		t, err := time.Parse("2006-01-02", m[1])
		if err != nil {
			return time.Time{}, errors.Wrapf(ErrInvalidDate, "%q", raw)
		}
		return checkYear(t, raw)
	}

	fixed := strings.NewReplacer("O", "0", ",", ".").Replace(s)
	t, err := time.Parse("2.1.2006", fixed)
	if err != nil {
		if strings.HasPrefix(strings.ToLower(fixed), "xx") {
			return time.Time{}, ErrUnknownDate
		}
		return time.Time{}, errors.Wrapf(ErrInvalidDate, "%q", raw)
	}

	if century := t.Year() / 100; century == 9 || century == 10 {
		t = time.Date(1900+t.Year()%100, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}

	return checkYear(t, raw)
}

func checkYear(t time.Time, raw string) (time.Time, error) {
	if t.Year() < MinValidYear {
		return time.Time{}, errors.Wrapf(ErrInvalidDate, "%q is before %d", raw, MinValidYear)
	}
	return t.UTC(), nil
}

// InWartime reports whether t falls inside the 1939-1945 war period
func InWartime(t time.Time) bool {
	return !t.Before(WartimeStart) && !t.After(WartimeEnd)
}

// FormatDate renders a date in ISO form
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
