package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/models"
)

func weekdayHours(tz string) models.BusinessHours {
	return models.BusinessHours{
		Start:    "09:00",
		End:      "18:00",
		Timezone: tz,
		Days:     []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
	}
}

func at(t *testing.T, tz, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	require.NoError(t, err)
	v, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)
	return v
}

func TestOutsideBusinessHours(t *testing.T) {
	const tz = "America/New_York"
	h := weekdayHours(tz)

	cases := []struct {
		name    string
		when    string
		outside bool
	}{
		{"friday just before close", "2024-03-15 17:59", false},
		{"friday at close", "2024-03-15 18:00", true},
		{"friday at open", "2024-03-15 09:00", false},
		{"friday before open", "2024-03-15 08:59", true},
		{"saturday midday", "2024-03-16 12:00", true},
		{"sunday morning", "2024-03-17 10:00", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := OutsideBusinessHours(h, at(t, tz, tc.when))
			require.NoError(t, err)
			assert.Equal(t, tc.outside, got)
		})
	}
}

func TestOutsideBusinessHours_ConvertsToConfiguredZone(t *testing.T) {
	h := weekdayHours("Asia/Tokyo")

	// 2024-03-15 01:00 UTC is Friday 10:00 in Tokyo.
	utc := time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)
	outside, err := OutsideBusinessHours(h, utc)
	require.NoError(t, err)
	assert.False(t, outside)

	// 2024-03-15 15:00 UTC is Saturday 00:00 in Tokyo.
	outside, err = OutsideBusinessHours(h, time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, outside)
}

func TestOutsideBusinessHours_OvernightWindow(t *testing.T) {
	h := models.BusinessHours{Start: "22:00", End: "06:00", Timezone: "UTC", Days: []string{"Fri"}}

	late, _ := OutsideBusinessHours(h, time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC))
	early, _ := OutsideBusinessHours(h, time.Date(2024, 3, 15, 5, 59, 0, 0, time.UTC))
	noon, _ := OutsideBusinessHours(h, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))

	assert.False(t, late)
	assert.False(t, early)
	assert.True(t, noon)
}

func TestOutsideBusinessHours_DayNames(t *testing.T) {
	h := models.BusinessHours{Start: "00:00", End: "23:59", Days: []string{"friday", " SAT "}}

	fri, _ := OutsideBusinessHours(h, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	sat, _ := OutsideBusinessHours(h, time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC))
	sun, _ := OutsideBusinessHours(h, time.Date(2024, 3, 17, 12, 0, 0, 0, time.UTC))

	assert.False(t, fri)
	assert.False(t, sat)
	assert.True(t, sun)
}

func TestOutsideBusinessHours_Invalid(t *testing.T) {
	_, err := OutsideBusinessHours(models.BusinessHours{Start: "9am", End: "18:00"}, time.Now())
	assert.Error(t, err)

	h := weekdayHours("Not/AZone")
	outside, err := OutsideBusinessHours(h, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, outside)
}

func TestValidateConfig(t *testing.T) {
	valid := &models.AutoResponseConfig{
		WelcomeEnabled: true,
		WelcomeMessage: "Hi!",
		AwayEnabled:    true,
		AwayMessage:    "We are closed",
		BusinessHours:  models.BusinessHours{Start: "09:00", End: "18:00", Timezone: "Europe/Berlin", Days: []string{"Mon"}},
	}
	assert.NoError(t, ValidateConfig(valid))
	assert.NoError(t, ValidateConfig(nil))
	assert.NoError(t, ValidateConfig(&models.AutoResponseConfig{BusinessHours: models.BusinessHours{Start: "junk"}}))

	broken := []func(c *models.AutoResponseConfig){
		func(c *models.AutoResponseConfig) { c.WelcomeMessage = " " },
		func(c *models.AutoResponseConfig) { c.AwayMessage = "" },
		func(c *models.AutoResponseConfig) { c.BusinessHours.Start = "9am" },
		func(c *models.AutoResponseConfig) { c.BusinessHours.End = "24:30" },
		func(c *models.AutoResponseConfig) { c.BusinessHours.Timezone = "Mars/Olympus" },
	}
	for i, mutate := range broken {
		cfg := *valid
		mutate(&cfg)
		err := ValidateConfig(&cfg)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "case %d", i)
	}
}
