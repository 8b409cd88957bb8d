package broadcast

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"whatsapp-crm/internal/models"
)

const reportSheet = "Delivery"

// WriteReport writes an xlsx workbook with one row per audience entry
// followed by a summary sheet.
func WriteReport(w io.Writer, campaign *models.Campaign, audience []models.CampaignAudience) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	headers := []interface{}{"Phone", "Name", "Status", "Message ID", "Error", "Attempted At"}
	if err := f.SetSheetRow(reportSheet, "A1", &headers); err != nil {
		return err
	}
	if err := f.SetCellStyle(reportSheet, "A1", "F1", headerStyle); err != nil {
		return err
	}

	for i, a := range audience {
		messageID := ""
		if a.MessageID != nil {
			messageID = *a.MessageID
		}
		attempted := ""
		if a.AttemptedAt != nil {
			attempted = a.AttemptedAt.UTC().Format(time.RFC3339)
		}
		row := []interface{}{a.ContactPhone, a.ContactName, string(a.Status), messageID, a.Error, attempted}
		if err := f.SetSheetRow(reportSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet("Summary"); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	summary := [][]interface{}{
		{"Campaign", campaign.Name},
		{"Template", campaign.TemplateName + " (" + campaign.TemplateLanguage + ")"},
		{"Status", string(campaign.Status)},
		{"Total", campaign.Stats.Total},
		{"Sent", campaign.Stats.Sent},
		{"Failed", campaign.Stats.Failed},
		{"Pending", campaign.Stats.Pending},
	}
	for i, row := range summary {
		if err := f.SetSheetRow("Summary", fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}
