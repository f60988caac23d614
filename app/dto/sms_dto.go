package dto

// SMSStatsQuery filters the SMS dashboard; Since is RFC3339
type SMSStatsQuery struct {
	Since string `query:"since" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// SMSExportQuery filters the spreadsheet export. From and To are inclusive civil dates.
type SMSExportQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=sending sent failed"`
	From   string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}
