package navigation

import "net/url"

// UIシェルが表示する画面のパス。
const (
	RouteConnect         = "/connect"
	RouteLogin           = "/login"
	RouteSignup          = "/signup"
	RouteWhoAreYou       = "/signup/who-are-you"
	RouteHome            = "/"
	RouteEvents          = "/events"
	RouteBookings        = "/bookings"
	RouteProfile         = "/profile"
	RouteLocation        = "/location"
	RouteAreaSelection   = "/area-selection"
	RouteQuiz            = "/quiz"
	RoutePersonalityQuiz = "/personality-quiz"
	RouteFindingMatches  = "/finding-matches"
)

// EventRoute はイベント詳細画面のパスを返す。
func EventRoute(id string) string {
	return RouteEvents + "/" + url.PathEscape(id)
}
