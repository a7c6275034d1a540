package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/citadel/internal/api"
	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/query"
)

// fakeAPI はAPIの呼び出し回数を数えるテスト用実装。
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	events      []model.DinnerEvent
	prefs       *model.PreferencesState
	quizDone    bool
	profileErr  error
	blockEvents chan struct{}
	orderGate   chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls: make(map[string]int),
		events: []model.DinnerEvent{
			{ID: "slot_42", City: "bengaluru", Title: "<b>Friday</b> Dinner", Description: `<p>Six strangers</p><script>alert(1)</script>`, Venue: "Toit &amp; Co", Price: 899},
		},
		prefs: &model.PreferencesState{HasCompletedSetup: false},
	}
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) SendOTP(ctx context.Context, email string, isLogin bool) (*api.SendOTPResult, error) {
	f.record("sendOTP")
	return &api.SendOTPResult{Success: true, ExpiresIn: 300}, nil
}

func (f *fakeAPI) VerifyOTP(ctx context.Context, email, otp string) (*api.VerifyOTPResult, error) {
	f.record("verifyOTP")
	return &api.VerifyOTPResult{
		Success: true,
		Tokens:  model.SessionTokens{AccessToken: "access"},
		User:    model.UserIdentity{ID: "u_1", Email: email},
	}, nil
}

func (f *fakeAPI) UpcomingEvents(ctx context.Context, filter model.EventFilter) (*model.EventList, error) {
	f.record("events")
	if f.blockEvents != nil {
		<-f.blockEvents
	}
	events := make([]model.DinnerEvent, len(f.events))
	copy(events, f.events)
	return &model.EventList{Events: events, TotalEvents: len(events)}, nil
}

func (f *fakeAPI) Event(ctx context.Context, id string) (*model.DinnerEvent, error) {
	f.record("event")
	for _, ev := range f.events {
		if ev.ID == id {
			ev := ev
			return &ev, nil
		}
	}
	return nil, model.NewRemoteError(404, "event not found")
}

func (f *fakeAPI) MyBookings(ctx context.Context, typ model.BookingType) ([]model.Booking, error) {
	f.record("bookings:" + string(typ))
	return []model.Booking{{ID: "bk_1", EventID: "slot_42", Status: "confirmed"}}, nil
}

func (f *fakeAPI) Preferences(ctx context.Context) (*model.PreferencesState, error) {
	f.record("preferences")
	return f.prefs, nil
}

func (f *fakeAPI) SavePreferences(ctx context.Context, prefs model.DinnerPreferences) (*model.PreferencesState, error) {
	f.record("savePreferences")
	return &model.PreferencesState{HasCompletedSetup: true, Preferences: &prefs}, nil
}

func (f *fakeAPI) UpdatePreferences(ctx context.Context, prefs model.DinnerPreferences) (*model.PreferencesState, error) {
	f.record("updatePreferences")
	return &model.PreferencesState{HasCompletedSetup: true}, nil
}

func (f *fakeAPI) Profile(ctx context.Context) (*model.UserProfile, error) {
	f.record("profile")
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &model.UserProfile{ID: "u_1", Name: "Asha"}, nil
}

func (f *fakeAPI) CreateProfile(ctx context.Context, in model.ProfileInput) (string, error) {
	f.record("createProfile")
	return "u_1", nil
}

func (f *fakeAPI) QuizStatus(ctx context.Context) (*model.QuizStatus, error) {
	f.record("quizStatus")
	f.mu.Lock()
	defer f.mu.Unlock()
	return &model.QuizStatus{HasCompletedQuiz: f.quizDone}, nil
}

func (f *fakeAPI) SubmitQuiz(ctx context.Context, in model.QuizSubmission) error {
	f.record("submitQuiz")
	f.mu.Lock()
	f.quizDone = true
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) CreatePaymentOrder(ctx context.Context, in model.PaymentOrderInput) (*model.PaymentOrderResult, error) {
	f.record("createOrder")
	if f.orderGate != nil {
		<-f.orderGate
	}
	return &model.PaymentOrderResult{Order: model.PaymentOrder{ID: "order_1", Amount: in.Amount, Currency: in.Currency}}, nil
}

func (f *fakeAPI) VerifyPayment(ctx context.Context, in model.PaymentVerification) (*model.PaymentConfirmation, error) {
	f.record("verifyPayment")
	return &model.PaymentConfirmation{BookingID: "bk_2", PaymentID: in.PaymentID}, nil
}

func newTestService(fake *fakeAPI) *Service {
	return NewService(fake, query.New(query.Options{}), nil)
}

var filter = model.EventFilter{City: "bengaluru", Date: "2025-01-10", Area: "Indiranagar"}

func TestEvents_ConcurrentReadsShareOneCall(t *testing.T) {
	fake := newFakeAPI()
	fake.blockEvents = make(chan struct{})
	s := newTestService(fake)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			list, err := s.Events(context.Background(), filter)
			if err != nil || len(list.Events) != 1 {
				failures.Add(1)
			}
		}()
	}
	require.Eventually(t, func() bool { return fake.count("events") == 1 }, time.Second, time.Millisecond)
	close(fake.blockEvents)
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, fake.count("events"))
}

func TestEvents_SanitizesText(t *testing.T) {
	s := newTestService(newFakeAPI())

	list, err := s.Events(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, list.Events, 1)

	ev := list.Events[0]
	assert.Equal(t, "Friday Dinner", ev.Title)
	assert.Equal(t, "Toit & Co", ev.Venue)
	assert.Contains(t, ev.Description, "<p>Six strangers</p>")
	assert.NotContains(t, ev.Description, "script")
}

func TestEvents_KeyedByFilter(t *testing.T) {
	fake := newFakeAPI()
	s := newTestService(fake)
	ctx := context.Background()

	_, err := s.Events(ctx, filter)
	require.NoError(t, err)
	_, err = s.Events(ctx, filter)
	require.NoError(t, err)
	_, err = s.Events(ctx, model.EventFilter{City: "mumbai"})
	require.NoError(t, err)

	assert.Equal(t, 2, fake.count("events"))
}

func TestEvent_SanitizesAndCaches(t *testing.T) {
	fake := newFakeAPI()
	s := newTestService(fake)
	ctx := context.Background()

	ev, err := s.Event(ctx, "slot_42")
	require.NoError(t, err)
	assert.Equal(t, "Friday Dinner", ev.Title)

	_, err = s.Event(ctx, "slot_42")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.count("event"))
}

func TestProfile_ErrorIsNotCached(t *testing.T) {
	fake := newFakeAPI()
	fake.profileErr = model.NewNetworkError("offline")
	s := newTestService(fake)
	ctx := context.Background()

	_, err := s.Profile(ctx)
	require.Error(t, err)
	assert.True(t, model.HasCategory(err, model.CategoryNetwork))

	fake.profileErr = nil
	p, err := s.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Asha", p.Name)
	assert.Equal(t, 2, fake.count("profile"))
}

func TestSavePreferences_WritesThroughCache(t *testing.T) {
	fake := newFakeAPI()
	s := newTestService(fake)
	ctx := context.Background()

	before, err := s.Preferences(ctx)
	require.NoError(t, err)
	assert.False(t, before.HasCompletedSetup)

	_, err = s.SavePreferences(ctx, model.DinnerPreferences{City: "bengaluru", PreferredAreas: []string{"Indiranagar"}})
	require.NoError(t, err)

	after, err := s.Preferences(ctx)
	require.NoError(t, err)
	assert.True(t, after.HasCompletedSetup)
	assert.Equal(t, "bengaluru", after.Preferences.City)
	assert.Equal(t, 1, fake.count("preferences"))
}

func TestUpdatePreferences_InvalidatesPreferencesAndEvents(t *testing.T) {
	fake := newFakeAPI()
	s := newTestService(fake)
	ctx := context.Background()

	_, err := s.Preferences(ctx)
	require.NoError(t, err)
	_, err = s.Events(ctx, filter)
	require.NoError(t, err)

	// 応答に設定本体がないため再取得になる
	_, err = s.UpdatePreferences(ctx, model.DinnerPreferences{City: "mumbai"})
	require.NoError(t, err)

	_, err = s.Preferences(ctx)
	require.NoError(t, err)
	_, err = s.Events(ctx, filter)
	require.NoError(t, err)

	assert.Equal(t, 2, fake.count("preferences"))
	assert.Equal(t, 2, fake.count("events"))
}

func TestSubmitQuiz_InvalidatesQuizStatus(t *testing.T) {
	fake := newFakeAPI()
	s := newTestService(fake)
	ctx := context.Background()

	st, err := s.QuizStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.HasCompletedQuiz)

	require.NoError(t, s.SubmitQuiz(ctx, model.QuizSubmission{QuizType: model.QuizTypeOnboarding}))

	st, err = s.QuizStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.HasCompletedQuiz)
	assert.Equal(t, 2, fake.count("quizStatus"))
}

func TestVerifyPayment_InvalidatesBookings(t *testing.T) {
	fake := newFakeAPI()
	s := newTestService(fake)
	ctx := context.Background()

	_, err := s.Bookings(ctx, model.BookingTypeUpcoming)
	require.NoError(t, err)

	conf, err := s.VerifyPayment(ctx, model.PaymentVerification{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", conf.PaymentID)

	_, err = s.Bookings(ctx, model.BookingTypeUpcoming)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.count("bookings:upcoming"))
}

func TestCreatePaymentOrder_OneInFlight(t *testing.T) {
	fake := newFakeAPI()
	fake.orderGate = make(chan struct{})
	s := newTestService(fake)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.CreatePaymentOrder(ctx, model.PaymentOrderInput{Amount: 899, Currency: model.PaymentCurrencyINR})
		done <- err
	}()
	require.Eventually(t, func() bool { return s.Pending(CreateOrder) }, time.Second, time.Millisecond)

	_, err := s.CreatePaymentOrder(ctx, model.PaymentOrderInput{Amount: 899})
	assert.True(t, errors.Is(err, query.ErrMutationInFlight))

	close(fake.orderGate)
	require.NoError(t, <-done)
	assert.False(t, s.Pending(CreateOrder))
	assert.Equal(t, 1, fake.count("createOrder"))
}

func TestReset_DropsEverything(t *testing.T) {
	fake := newFakeAPI()
	s := newTestService(fake)
	ctx := context.Background()

	_, _ = s.Profile(ctx)
	_, _ = s.Events(ctx, filter)
	require.Equal(t, 2, s.Cache().Len())

	s.Reset()
	assert.Zero(t, s.Cache().Len())
}

func TestBookingsKey_DefaultsToUpcoming(t *testing.T) {
	assert.Equal(t, BookingsKey(model.BookingTypeUpcoming), BookingsKey(""))
	assert.NotEqual(t, BookingsKey(model.BookingTypeUpcoming), BookingsKey(model.BookingTypePast))
}

func TestVerifyOTP_InvalidatesUserScopedCache(t *testing.T) {
	fake := newFakeAPI()
	s := newTestService(fake)
	ctx := context.Background()

	_, err := s.Profile(ctx)
	require.NoError(t, err)

	res, err := s.VerifyOTP(ctx, "a@uni.edu", "1234")
	require.NoError(t, err)
	assert.Equal(t, "a@uni.edu", res.User.Email)

	_, err = s.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.count("profile"))
}
