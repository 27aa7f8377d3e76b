package transform

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-rollup/internal/model"
)

// YesterdayUTC returns the partition date of the last complete UTC day
// before now.
func YesterdayUTC(now time.Time) string {
	return now.UTC().AddDate(0, 0, -1).Format(model.DateLayout)
}

// ValidateDate checks that date is a YYYY-MM-DD calendar date.
func ValidateDate(date string) error {
	t, err := time.Parse(model.DateLayout, date)
	if err != nil || t.Format(model.DateLayout) != date {
		return eris.Errorf("transform: invalid partition date %q (want YYYY-MM-DD)", date)
	}
	return nil
}
