package resource

import (
	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/query"
)

// リソース名（キャッシュキーの先頭要素）
const (
	ResourceEvents      = "events"
	ResourceEvent       = "event"
	ResourceBookings    = "bookings"
	ResourcePreferences = "preferences"
	ResourceProfile     = "profile"
	ResourceQuizStatus  = "quiz-status"
)

// EventsKey はイベント一覧のキャッシュキーを返す。
func EventsKey(filter model.EventFilter) query.Key {
	return query.Key{ResourceEvents, filter.City, filter.Date, filter.Area}
}

// EventKey はイベント詳細のキャッシュキーを返す。
func EventKey(id string) query.Key {
	return query.Key{ResourceEvent, id}
}

// BookingsKey は予約一覧のキャッシュキーを返す。
func BookingsKey(typ model.BookingType) query.Key {
	if typ == "" {
		typ = model.BookingTypeUpcoming
	}
	return query.Key{ResourceBookings, string(typ)}
}

var (
	PreferencesKey = query.Key{ResourcePreferences}
	ProfileKey     = query.Key{ResourceProfile}
	QuizStatusKey  = query.Key{ResourceQuizStatus}
)

// AllKeys はログアウト時に破棄するキャッシュキーの接頭辞。
var AllKeys = []query.Key{
	{ResourceEvents},
	{ResourceEvent},
	{ResourceBookings},
	PreferencesKey,
	ProfileKey,
	QuizStatusKey,
}
