package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/navigation"
)

var (
	bengaluru = model.City{ID: "bengaluru", Name: "Bengaluru", IsAvailable: true, Areas: []string{"Indiranagar", "Koramangala"}}
	pune      = model.City{ID: "pune", Name: "Pune", IsAvailable: false}
	hyderabad = model.City{ID: "hyderabad", Name: "Hyderabad", IsAvailable: true, ComingSoon: true}
)

func mustTransition(t *testing.T, s State, ev Event) State {
	t.Helper()
	next, err := Transition(s, ev)
	require.NoError(t, err, "%T at %q", ev, s.Step)
	return next
}

func TestTransition_BookingPathWithQuiz(t *testing.T) {
	s := mustTransition(t, State{}, BookingStarted{SlotID: "slot_42"})
	assert.Equal(t, StepLocation, s.Step)
	assert.Equal(t, Context{IsBookingFlow: true, SelectedSlotID: "slot_42"}, s.Context)

	s = mustTransition(t, s, CitySelected{City: bengaluru})
	assert.Equal(t, StepAreaSelection, s.Step)
	require.NotNil(t, s.TempCity)

	s = mustTransition(t, s, AreasConfirmed{Areas: []string{"Indiranagar"}, QuizCompleted: false})
	assert.Equal(t, StepQuiz, s.Step)
	assert.Nil(t, s.TempCity)

	s = mustTransition(t, s, QuizCompleted{})
	assert.Equal(t, StepPersonalityQuiz, s.Step)

	s = mustTransition(t, s, PersonalityQuizCompleted{})
	assert.Equal(t, StepFindingMatches, s.Step)
	assert.Equal(t, "slot_42", s.Context.PendingEventID)
	assert.Equal(t, navigation.RouteFindingMatches, s.Route())

	s = mustTransition(t, s, MatchingFinished{})
	assert.Equal(t, StepEventDetail, s.Step)
	assert.Equal(t, "/events/slot_42", s.Route())
	assert.Equal(t, Context{}, s.Context)
}

func TestTransition_QuizSkippedOnceCompleted(t *testing.T) {
	s := mustTransition(t, State{}, BookingStarted{SlotID: "slot_7"})
	s = mustTransition(t, s, CitySelected{City: bengaluru})
	s = mustTransition(t, s, AreasConfirmed{Areas: []string{"Koramangala"}, QuizCompleted: true})
	assert.Equal(t, StepPersonalityQuiz, s.Step)
}

func TestTransition_BrowsingShortCircuit(t *testing.T) {
	s := mustTransition(t, State{}, BrowsingStarted{})
	s = mustTransition(t, s, CitySelected{City: bengaluru})
	s = mustTransition(t, s, AreasConfirmed{Areas: []string{"Indiranagar"}})
	assert.Equal(t, StepEvents, s.Step)
	assert.Equal(t, navigation.RouteEvents, s.Route())
}

func TestTransition_UnavailableCities(t *testing.T) {
	start := mustTransition(t, State{}, BookingStarted{SlotID: "slot_42"})

	for _, city := range []model.City{pune, hyderabad} {
		t.Run(city.ID, func(t *testing.T) {
			next, err := Transition(start, CitySelected{City: city})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCityUnavailable)
			assert.True(t, model.IsValidation(err))
			assert.Equal(t, start, next)
		})
	}
}

func TestTransition_AreasMustBeSelected(t *testing.T) {
	s := mustTransition(t, State{}, BrowsingStarted{})
	s = mustTransition(t, s, CitySelected{City: bengaluru})

	next, err := Transition(s, AreasConfirmed{})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
	assert.Equal(t, s, next)

	_, err = Transition(s, AreasConfirmed{Areas: []string{"Bandra"}})
	assert.True(t, model.IsValidation(err))
}

func TestTransition_FindingMatchesGuard(t *testing.T) {
	// 予約フロー外で直接開いた場合
	s := mustTransition(t, State{}, FindingMatchesEntered{})
	assert.Equal(t, StepEvents, s.Step)

	// 予約フロー中で待機対象がある場合は留まる
	resumed := State{Context: Context{IsBookingFlow: true, SelectedSlotID: "slot_42", PendingEventID: "slot_42"}}
	s = mustTransition(t, resumed, FindingMatchesEntered{})
	assert.Equal(t, StepFindingMatches, s.Step)
}

func TestTransition_CancelFromAnyStep(t *testing.T) {
	s := mustTransition(t, State{}, BookingStarted{SlotID: "slot_42"})
	steps := []Event{CitySelected{City: bengaluru}, AreasConfirmed{Areas: []string{"Indiranagar"}}, QuizCompleted{}, PersonalityQuizCompleted{}}

	for _, ev := range steps {
		cancelled := mustTransition(t, s, Cancelled{})
		assert.Equal(t, State{Step: StepEvents}, cancelled, "cancel at %q", s.Step)
		s = mustTransition(t, s, ev)
	}
}

func TestTransition_OutOfOrder(t *testing.T) {
	tests := []struct {
		name  string
		state State
		ev    Event
	}{
		{"開始前のエリア確定", State{}, AreasConfirmed{Areas: []string{"x"}}},
		{"クイズ前の性格診断完了", State{Step: StepQuiz}, PersonalityQuizCompleted{}},
		{"マッチング前の終了", State{Step: StepPersonalityQuiz}, MatchingFinished{}},
		{"都市選択前のクイズ", State{Step: StepLocation}, QuizCompleted{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transition(tt.state, tt.ev)
			assert.ErrorIs(t, err, ErrUnexpectedEvent)
		})
	}
}

func TestTransition_EmptySlotRejected(t *testing.T) {
	_, err := Transition(State{}, BookingStarted{})
	assert.True(t, model.IsValidation(err))
}
