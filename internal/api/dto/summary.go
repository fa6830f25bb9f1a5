package dto

// SummaryQuery is bound from the query string of GET /api/summaries. Dates
// are calendar days (YYYY-MM-DD).
type SummaryQuery struct {
	From string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" validate:"omitempty,datetime=2006-01-02"`
}
