// Package booking はイベント予約のステップフロー（都市選択からマッチングまで）と決済を提供する。
package booking

import (
	"errors"
	"fmt"

	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/navigation"
	"github.com/hitoshi/citadel/internal/validation"
)

// Step は予約フローのステップ。
type Step string

const (
	StepIdle            Step = ""
	StepLocation        Step = "location"
	StepAreaSelection   Step = "area-selection"
	StepQuiz            Step = "quiz"
	StepPersonalityQuiz Step = "personality-quiz"
	StepFindingMatches  Step = "finding-matches"
	StepEventDetail     Step = "event-detail"
	StepEvents          Step = "events"
)

var (
	// ErrCityUnavailable は選択できない都市（利用不可または準備中）が選ばれたことを示す。
	ErrCityUnavailable = errors.New("booking: city is not available")
	// ErrUnexpectedEvent は現在のステップで受け付けないイベントを示す。
	ErrUnexpectedEvent = errors.New("booking: unexpected event for step")
)

// Context は進行中の予約の一時的な状態。
type Context struct {
	IsBookingFlow  bool   `json:"isBookingFlow"`
	SelectedSlotID string `json:"selectedSlotId,omitempty"`
	PendingEventID string `json:"pendingEventId,omitempty"`
}

// State は予約フローの状態。
type State struct {
	Step     Step
	Context  Context
	TempCity *model.City // エリア選択中の未確定の都市
	EventID  string      // StepEventDetailで表示するイベント
}

// Event は状態遷移を引き起こす入力。
type Event interface {
	event()
}

type (
	// BookingStarted はイベント枠からの予約開始。
	BookingStarted struct{ SlotID string }
	// BrowsingStarted は予約を伴わない都市・エリアの変更開始。
	BrowsingStarted struct{}
	// CitySelected は都市の選択。
	CitySelected struct{ City model.City }
	// AreasConfirmed は食事設定の保存に成功したエリアの確定。
	// QuizCompletedはオンボーディングクイズが回答済みか。
	AreasConfirmed struct {
		Areas         []string
		QuizCompleted bool
	}
	// QuizCompleted はオンボーディングクイズの回答完了。
	QuizCompleted struct{}
	// PersonalityQuizCompleted は性格診断クイズの回答完了。
	PersonalityQuizCompleted struct{}
	// FindingMatchesEntered はマッチング画面への直接の遷移（再読み込みやディープリンク）。
	FindingMatchesEntered struct{}
	// MatchingFinished はマッチング待機の終了。
	MatchingFinished struct{}
	// Cancelled は予約フローの中断。
	Cancelled struct{}
)

func (BookingStarted) event()           {}
func (BrowsingStarted) event()          {}
func (CitySelected) event()             {}
func (AreasConfirmed) event()           {}
func (QuizCompleted) event()            {}
func (PersonalityQuizCompleted) event() {}
func (FindingMatchesEntered) event()    {}
func (MatchingFinished) event()         {}
func (Cancelled) event()                {}

// Transition はsにevを適用した次の状態を返す。
// 失敗した場合はsをそのまま返す。
func Transition(s State, ev Event) (State, error) {
	next := s
	switch e := ev.(type) {
	case BookingStarted:
		if e.SlotID == "" {
			return s, model.NewValidationError("slot", "予約するイベントを選択してください。")
		}
		next = State{Step: StepLocation, Context: Context{IsBookingFlow: true, SelectedSlotID: e.SlotID}}

	case BrowsingStarted:
		next = State{Step: StepLocation}

	case CitySelected:
		if s.Step != StepLocation && s.Step != StepAreaSelection {
			return s, unexpected(s, ev)
		}
		if e.City.ID != "" && !e.City.Selectable() {
			return s, fmt.Errorf("%w: %w", ErrCityUnavailable, model.NewCityUnavailableError(e.City.Name))
		}
		if err := validation.City(e.City); err != nil {
			return s, err
		}
		city := e.City
		next.TempCity = &city
		next.Step = StepAreaSelection

	case AreasConfirmed:
		if s.Step != StepAreaSelection || s.TempCity == nil {
			return s, unexpected(s, ev)
		}
		if err := validation.Areas(*s.TempCity, e.Areas); err != nil {
			return s, err
		}
		next.TempCity = nil
		switch {
		case !s.Context.IsBookingFlow:
			next.Step = StepEvents
		case e.QuizCompleted:
			next.Step = StepPersonalityQuiz
		default:
			next.Step = StepQuiz
		}

	case QuizCompleted:
		if s.Step != StepQuiz {
			return s, unexpected(s, ev)
		}
		next.Step = StepPersonalityQuiz

	case PersonalityQuizCompleted:
		if s.Step != StepPersonalityQuiz {
			return s, unexpected(s, ev)
		}
		if !s.Context.IsBookingFlow {
			next = State{Step: StepEvents}
			break
		}
		next.Step = StepFindingMatches
		next.Context.PendingEventID = s.Context.SelectedSlotID

	case FindingMatchesEntered:
		// 予約フロー外でのマッチング画面は一覧に戻す
		if !s.Context.IsBookingFlow || s.Context.PendingEventID == "" {
			next = State{Step: StepEvents}
			break
		}
		next.Step = StepFindingMatches

	case MatchingFinished:
		if s.Step != StepFindingMatches || s.Context.PendingEventID == "" {
			return s, unexpected(s, ev)
		}
		next = State{Step: StepEventDetail, EventID: s.Context.PendingEventID}

	case Cancelled:
		next = State{Step: StepEvents}

	default:
		return s, unexpected(s, ev)
	}
	return next, nil
}

func unexpected(s State, ev Event) error {
	return fmt.Errorf("%w: %T at %q", ErrUnexpectedEvent, ev, s.Step)
}

// Route はステップに対応する画面パスを返す。
func (s State) Route() string {
	switch s.Step {
	case StepLocation:
		return navigation.RouteLocation
	case StepAreaSelection:
		return navigation.RouteAreaSelection
	case StepQuiz:
		return navigation.RouteQuiz
	case StepPersonalityQuiz:
		return navigation.RoutePersonalityQuiz
	case StepFindingMatches:
		return navigation.RouteFindingMatches
	case StepEventDetail:
		return navigation.EventRoute(s.EventID)
	}
	return navigation.RouteEvents
}
