package messaging

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	"whatsapp-crm/internal/apperr"
)

// NormalizePhone parses raw against region and returns the E.164 digits
// without the leading plus. Conversations are keyed by this form, which is
// also how the platform reports wa_id on inbound messages. Without a region
// the number is read as international.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.Validation("phone is required")
	}
	if strings.HasPrefix(raw, "00") {
		raw = "+" + raw[2:]
	}
	if region == "" && !strings.HasPrefix(raw, "+") {
		raw = "+" + raw
	}

	parsed, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", apperr.Validationf("invalid phone %q: %v", raw, err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", apperr.Validationf("invalid phone %q", raw)
	}
	return strings.TrimPrefix(phonenumbers.Format(parsed, phonenumbers.E164), "+"), nil
}
