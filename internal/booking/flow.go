package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/navigation"
	"github.com/hitoshi/citadel/internal/query"
	"github.com/hitoshi/citadel/internal/storage"
)

// DefaultMatchingDelay はマッチング画面の表示時間の既定値。
const DefaultMatchingDelay = 3 * time.Second

// booking名前空間のキー
const (
	keyContext  = "context"
	keyTempCity = "tempCity"
)

// Remote は予約フローが呼び出すリモート操作。*resource.Serviceが実装する。
type Remote interface {
	Preferences(ctx context.Context) (*model.PreferencesState, error)
	SavePreferences(ctx context.Context, prefs model.DinnerPreferences) (*model.PreferencesState, error)
	UpdatePreferences(ctx context.Context, prefs model.DinnerPreferences) (*model.PreferencesState, error)
	QuizStatus(ctx context.Context) (*model.QuizStatus, error)
	SubmitQuiz(ctx context.Context, in model.QuizSubmission) error
	CreatePaymentOrder(ctx context.Context, in model.PaymentOrderInput) (*model.PaymentOrderResult, error)
	VerifyPayment(ctx context.Context, in model.PaymentVerification) (*model.PaymentConfirmation, error)
	Pending(m query.Mutation) bool
}

// Users はログイン中のユーザー情報を返す。*session.Managerが実装する。
type Users interface {
	UserData(ctx context.Context) (*model.UserIdentity, error)
}

// Options はFlowの任意設定。
type Options struct {
	// MatchingDelay はマッチング画面から詳細画面に進むまでの時間。
	MatchingDelay time.Duration
	// Navigate は遷移先の画面パスを受け取るUIシェルのコールバック。
	Navigate func(route string)
	Logger   *slog.Logger
}

// Flow は予約フローのコントローラー。
type Flow struct {
	ns       *storage.Namespace
	nav      *navigation.Navigator
	remote   Remote
	users    Users
	delay    time.Duration
	navigate func(string)
	logger   *slog.Logger

	mu    sync.Mutex
	state State
}

// NewFlow はFlowを生成する。
func NewFlow(store storage.Store, remote Remote, users Users, opts Options) *Flow {
	f := &Flow{
		ns:       storage.NewNamespace(store, storage.NamespaceBooking),
		nav:      navigation.NewNavigator(store),
		remote:   remote,
		users:    users,
		delay:    opts.MatchingDelay,
		navigate: opts.Navigate,
		logger:   opts.Logger,
	}
	if f.delay <= 0 {
		f.delay = DefaultMatchingDelay
	}
	if f.navigate == nil {
		f.navigate = func(string) {}
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Load は保存済みの予約コンテキストと未確定の都市を読み込む。
func (f *Flow) Load(ctx context.Context) error {
	var bc Context
	if _, err := f.ns.GetJSON(ctx, keyContext, &bc); err != nil {
		return err
	}
	var temp model.City
	ok, err := f.ns.GetJSON(ctx, keyTempCity, &temp)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = State{Context: bc}
	if ok {
		f.state.TempCity = &temp
	}
	return nil
}

// State は現在の状態を返す。
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Pending はactionのリモート呼び出しが実行中かを返す（resource.SavePreferencesなど）。
func (f *Flow) Pending(action query.Mutation) bool {
	return f.remote.Pending(action)
}

// StartBooking はイベント枠slotIDの予約を開始し、都市選択に進む。
func (f *Flow) StartBooking(ctx context.Context, slotID string) (string, error) {
	return f.apply(ctx, BookingStarted{SlotID: slotID})
}

// StartBrowsing は予約を伴わない都市・エリアの変更を開始する。
func (f *Flow) StartBrowsing(ctx context.Context) (string, error) {
	return f.apply(ctx, BrowsingStarted{})
}

// SelectCity は都市を選択してエリア選択に進む。
// 選択できない都市の場合はErrCityUnavailableを返し、遷移も画面コールバックも行わない。
func (f *Flow) SelectCity(ctx context.Context, city model.City) (string, error) {
	return f.apply(ctx, CitySelected{City: city})
}

// ConfirmAreas はエリアを確定し、食事設定を保存する。
// 初回は作成（POST /initial）、設定済みの場合は更新（PATCH）を行い、
// 成功した場合のみ未確定の都市を選択中の都市として保存する。
// 予約フローではクイズの回答状況により次のステップが変わる。
func (f *Flow) ConfirmAreas(ctx context.Context, areas []string, extra model.DinnerPreferences) (string, error) {
	st := f.State()
	check := AreasConfirmed{Areas: areas, QuizCompleted: true}
	if _, err := Transition(st, check); err != nil {
		return "", err
	}
	city := *st.TempCity

	prefs := extra
	prefs.City = city.Name
	prefs.PreferredAreas = areas

	current, err := f.remote.Preferences(ctx)
	if err != nil {
		return "", err
	}
	if current != nil && current.HasCompletedSetup {
		_, err = f.remote.UpdatePreferences(ctx, prefs)
	} else {
		_, err = f.remote.SavePreferences(ctx, prefs)
	}
	if err != nil {
		return "", err
	}
	if err := f.nav.SetSelectedCity(ctx, city); err != nil {
		return "", err
	}

	quizDone := true
	if st.Context.IsBookingFlow {
		status, err := f.remote.QuizStatus(ctx)
		if err != nil {
			return "", err
		}
		quizDone = status.HasCompletedQuiz
	}
	return f.apply(ctx, AreasConfirmed{Areas: areas, QuizCompleted: quizDone})
}

// CompleteQuiz はオンボーディングクイズの回答を送信し、性格診断クイズに進む。
func (f *Flow) CompleteQuiz(ctx context.Context, answers []model.QuizAnswer) (string, error) {
	if err := f.expect(StepQuiz, QuizCompleted{}); err != nil {
		return "", err
	}
	if err := f.remote.SubmitQuiz(ctx, model.QuizSubmission{
		QuizType: model.QuizTypeOnboarding,
		Answers:  answers,
	}); err != nil {
		return "", err
	}
	return f.apply(ctx, QuizCompleted{})
}

// CompletePersonalityQuiz は性格診断クイズの回答を送信する。
// 予約フローではマッチング画面に、そうでなければイベント一覧に進む。
func (f *Flow) CompletePersonalityQuiz(ctx context.Context, answers []model.QuizAnswer) (string, error) {
	if err := f.expect(StepPersonalityQuiz, PersonalityQuizCompleted{}); err != nil {
		return "", err
	}
	if err := f.remote.SubmitQuiz(ctx, model.QuizSubmission{
		QuizType: model.QuizTypePersonality,
		EventID:  f.State().Context.SelectedSlotID,
		Answers:  answers,
	}); err != nil {
		return "", err
	}
	return f.apply(ctx, PersonalityQuizCompleted{})
}

// EnterFindingMatches はマッチング画面への直接の遷移を検証する。
// 予約フロー中でなければイベント一覧に戻す。
func (f *Flow) EnterFindingMatches(ctx context.Context) (string, error) {
	return f.apply(ctx, FindingMatchesEntered{})
}

// AwaitMatches はマッチング待機の後にイベント詳細へ進み、予約コンテキストを消去する。
// 待機中にctxがキャンセルされた場合は遷移せずctx.Err()を返す。
func (f *Flow) AwaitMatches(ctx context.Context) (string, error) {
	if err := f.expect(StepFindingMatches, MatchingFinished{}); err != nil {
		return "", err
	}

	timer := time.NewTimer(f.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	// 待機後の書き込みは呼び出し元のキャンセルに影響されない
	return f.apply(context.WithoutCancel(ctx), MatchingFinished{})
}

// Cancel は予約コンテキストを破棄してイベント一覧に戻る。
func (f *Flow) Cancel(ctx context.Context) (string, error) {
	return f.apply(ctx, Cancelled{})
}

func (f *Flow) expect(step Step, ev Event) error {
	if st := f.State(); st.Step != step {
		return unexpected(st, ev)
	}
	return nil
}

// apply はevで状態を進めて保存し、遷移先の画面をコールバックに通知する。
func (f *Flow) apply(ctx context.Context, ev Event) (string, error) {
	f.mu.Lock()
	next, err := Transition(f.state, ev)
	if err != nil {
		f.mu.Unlock()
		return "", err
	}
	if err := f.persist(ctx, next); err != nil {
		f.mu.Unlock()
		return "", err
	}
	f.state = next
	f.mu.Unlock()

	route := next.Route()
	f.logger.Debug("booking step changed",
		slog.String("step", string(next.Step)),
		slog.String("route", route),
	)
	f.navigate(route)
	return route, nil
}

func (f *Flow) persist(ctx context.Context, s State) error {
	var errs []error
	if s.Context == (Context{}) {
		errs = append(errs, f.ns.Remove(ctx, keyContext))
	} else {
		errs = append(errs, f.ns.SetJSON(ctx, keyContext, s.Context))
	}
	if s.TempCity == nil {
		errs = append(errs, f.ns.Remove(ctx, keyTempCity))
	} else {
		errs = append(errs, f.ns.SetJSON(ctx, keyTempCity, s.TempCity))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to persist booking state: %w", err)
	}
	return nil
}
