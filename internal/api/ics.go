package api

import (
	"fmt"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/go-chi/chi/v5"

	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/registry"
	"github.com/kalambet/slotbot/internal/timeparse"
)

const icsEventDuration = time.Hour

// weekICS renders the week view as an iCalendar feed. Event UIDs are
// derived from the slot key, so re-importing the feed updates in place.
func weekICS(days []calendar.Day, loc *time.Location, stamp time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//slotbot//calendar export//EN")

	for _, d := range days {
		for _, e := range d.Entries {
			start, err := timeparse.At(d.Date, e.Time, loc)
			if err != nil {
				return "", err
			}
			ev := cal.AddEvent(fmt.Sprintf("%s-%s@slotbot", d.Date, start.Format("1504")))
			ev.SetDtStampTime(stamp)
			ev.SetStartAt(start)
			ev.SetEndAt(start.Add(icsEventDuration))
			ev.SetSummary(e.Title)
		}
	}
	return cal.Serialize(), nil
}

func handleWeekICS(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, ok := execute(w, r, deps, registry.ViewWeek, map[string]string{"date": chi.URLParam(r, "date")})
		if !ok {
			return
		}
		days, _ := out.Value.([]calendar.Day)
		body, err := weekICS(days, deps.Location, time.Now())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "rendering calendar: %v", err)
			return
		}
		weekStart, _ := timeparse.WeekStart(out.Arguments["date"])
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="week-%s.ics"`, weekStart))
		w.Write([]byte(body))
	}
}
