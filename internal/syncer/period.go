package syncer

import (
	"time"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
)

// PeriodKind is the calendar bucket a provider syncs by: ISO weeks for mail,
// months for calendar.
type PeriodKind int

const (
	PeriodWeek PeriodKind = iota
	PeriodMonth
)

// Period identifies one sync bucket. Number is the ISO week number or the
// month (1-12) depending on kind.
type Period struct {
	Year   int
	Number int
	Start  time.Time
}

// Window is the half-open [Start, End) time range of a period.
type Window struct {
	Start time.Time
	End   time.Time
}

// PeriodFor returns the period containing t.
func (k PeriodKind) PeriodFor(t time.Time) Period {
	t = t.UTC()
	if k == PeriodMonth {
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{Year: t.Year(), Number: int(t.Month()), Start: start}
	}

	// ISO week: Monday 00:00 UTC of the week containing t
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	monday := day.AddDate(0, 0, -offset)
	year, week := monday.ISOWeek()
	return Period{Year: year, Number: week, Start: monday}
}

// Next returns the period immediately after p.
func (k PeriodKind) Next(p Period) Period {
	if k == PeriodMonth {
		return k.PeriodFor(p.Start.AddDate(0, 1, 0))
	}
	return k.PeriodFor(p.Start.AddDate(0, 0, 7))
}

// WindowOf returns the half-open time range covered by p.
func (k PeriodKind) WindowOf(p Period) Window {
	if k == PeriodMonth {
		return Window{Start: p.Start, End: p.Start.AddDate(0, 1, 0)}
	}
	return Window{Start: p.Start, End: p.Start.AddDate(0, 0, 7)}
}

// nextIncomplete walks periods chronologically from epoch through the period
// containing now and returns the first whose progress row is missing or not
// completed. Oldest gap first: backfill always wins over recent data, and a
// crash resumes deterministically at the same period.
func (k PeriodKind) nextIncomplete(rows []models.PeriodProgress, epoch, now time.Time) (Period, bool) {
	type key struct{ year, number int }
	byPeriod := make(map[key]models.PeriodState, len(rows))
	for _, row := range rows {
		byPeriod[key{row.Year, row.PeriodNumber}] = row.Status
	}

	current := k.PeriodFor(now)
	for p := k.PeriodFor(epoch); !p.Start.After(current.Start); p = k.Next(p) {
		status, ok := byPeriod[key{p.Year, p.Number}]
		if !ok || status != models.PeriodCompleted {
			return p, true
		}
	}
	return Period{}, false
}
