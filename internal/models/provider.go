package models

// Provider identifies which Google surface a row belongs to.
type Provider string

const (
	ProviderGmail    Provider = "gmail"
	ProviderCalendar Provider = "calendar"
)

// ItemTable returns the fetched-item table for the provider.
func (p Provider) ItemTable() string {
	if p == ProviderCalendar {
		return "g_events"
	}
	return "g_emails"
}
