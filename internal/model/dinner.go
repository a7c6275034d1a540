package model

// DinnerPreferences はユーザーの食事設定を表す。
type DinnerPreferences struct {
	City               string   `json:"city"`
	PreferredAreas     []string `json:"preferredAreas"`
	Budget             string   `json:"budget,omitempty"`
	Language           string   `json:"language,omitempty"`
	DietaryRestriction string   `json:"dietaryRestriction,omitempty"`
}

// PreferencesState は食事設定取得APIのdata部を表す。
type PreferencesState struct {
	HasCompletedSetup bool               `json:"hasCompletedSetup"`
	Preferences       *DinnerPreferences `json:"preferences"`
}

// DinnerEvent は予約可能なディナーイベント（スロット）を表す。
type DinnerEvent struct {
	ID             string  `json:"id"`
	Title          string  `json:"title,omitempty"`
	Description    string  `json:"description,omitempty"`
	City           string  `json:"city"`
	Area           string  `json:"area,omitempty"`
	Venue          string  `json:"venue,omitempty"`
	Date           string  `json:"date"`
	Time           string  `json:"time,omitempty"`
	Price          float64 `json:"price"`
	Currency       string  `json:"currency,omitempty"`
	TotalSeats     int     `json:"totalSeats,omitempty"`
	AvailableSeats int     `json:"availableSeats,omitempty"`
}

// EventList は開催予定イベント一覧APIのdata部を表す。
type EventList struct {
	Events      []DinnerEvent `json:"events"`
	TotalEvents int           `json:"totalEvents"`
}

// EventFilter はイベント一覧の絞り込み条件を表す。
type EventFilter struct {
	City string
	Date string
	Area string
}

// BookingType は予約一覧の種別。
type BookingType string

const (
	BookingTypeUpcoming BookingType = "upcoming"
	BookingTypePast     BookingType = "past"
)

// Booking はユーザーのイベント予約を表す。
type Booking struct {
	ID        string       `json:"id"`
	EventID   string       `json:"eventId"`
	Status    string       `json:"status"`
	Guests    int          `json:"guests,omitempty"`
	Amount    float64      `json:"amount,omitempty"`
	CreatedAt string       `json:"createdAt,omitempty"`
	Event     *DinnerEvent `json:"event,omitempty"`
}
