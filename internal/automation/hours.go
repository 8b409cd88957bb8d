package automation

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/models"
)

// ValidateConfig rejects settings the engine could not act on: an enabled
// rule without text, or an away rule whose hours do not parse.
func ValidateConfig(cfg *models.AutoResponseConfig) error {
	if cfg == nil {
		return nil
	}
	if cfg.WelcomeEnabled && strings.TrimSpace(cfg.WelcomeMessage) == "" {
		return apperr.Validation("welcome message is required when welcome is enabled")
	}
	if !cfg.AwayEnabled {
		return nil
	}
	if strings.TrimSpace(cfg.AwayMessage) == "" {
		return apperr.Validation("away message is required when away is enabled")
	}
	for _, clock := range []string{cfg.BusinessHours.Start, cfg.BusinessHours.End} {
		if _, err := parseClock(clock); err != nil {
			return apperr.Validation(err.Error())
		}
	}
	if tz := cfg.BusinessHours.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return apperr.Validationf("unknown timezone %q", tz)
		}
	}
	return nil
}

// OutsideBusinessHours reports whether now, read in the configured timezone,
// falls outside the [start, end) window or on a day not listed. A window
// whose start is after its end runs past midnight. An unknown timezone falls
// back to UTC.
func OutsideBusinessHours(h models.BusinessHours, now time.Time) (bool, error) {
	start, err := parseClock(h.Start)
	if err != nil {
		return false, err
	}
	end, err := parseClock(h.End)
	if err != nil {
		return false, err
	}

	local := now.In(location(h.Timezone))
	if !dayListed(h.Days, local.Weekday()) {
		return true, nil
	}

	minute := local.Hour()*60 + local.Minute()
	switch {
	case start == end:
		return false, nil
	case start < end:
		return minute < start || minute >= end, nil
	default:
		return minute < start && minute >= end, nil
	}
}

func location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn().Str("timezone", tz).Msg("Unknown business-hours timezone, using UTC")
		return time.UTC
	}
	return loc
}

// parseClock turns "HH:MM" into minutes past midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid business-hours time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// dayListed matches "Mon", "monday" and similar against the weekday.
func dayListed(days []string, wd time.Weekday) bool {
	want := strings.ToLower(wd.String()[:3])
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if len(d) >= 3 && d[:3] == want {
			return true
		}
	}
	return false
}
