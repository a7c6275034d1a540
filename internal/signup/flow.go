package signup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/citadel/internal/api"
	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/query"
	"github.com/hitoshi/citadel/internal/storage"
	"github.com/hitoshi/citadel/internal/validation"
)

// signup名前空間のキー
const (
	keyAccumulator = "accumulator"
	keyEmail       = "email"
)

// Remote は登録フローが呼び出すリモート操作。*resource.Serviceが実装する。
type Remote interface {
	SendOTP(ctx context.Context, email string, isLogin bool) (*api.SendOTPResult, error)
	VerifyOTP(ctx context.Context, email, otp string) (*api.VerifyOTPResult, error)
	CreateProfile(ctx context.Context, in model.ProfileInput) (string, error)
	Pending(m query.Mutation) bool
}

// Sessions は認証成功時に書き込むセッション状態。*session.Managerが実装する。
type Sessions interface {
	IsAuthenticated(ctx context.Context) bool
	UserData(ctx context.Context) (*model.UserIdentity, error)
	SetTokens(ctx context.Context, tokens model.SessionTokens) error
	SetUserData(ctx context.Context, user model.UserIdentity) error
	MarkProfileComplete(ctx context.Context) error
}

// Flow は登録フローのコントローラー。
// 入力の検証、リモート呼び出し、登録情報の永続化を行い、成功時のみステップを進める。
type Flow struct {
	ns       *storage.Namespace
	remote   Remote
	sessions Sessions
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	state State
}

// NewFlow はFlowを生成する。状態は初期ステップから始まる。保存済みの入力はLoadで読み込む。
func NewFlow(store storage.Store, remote Remote, sessions Sessions, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		ns:       storage.NewNamespace(store, storage.NamespaceSignup),
		remote:   remote,
		sessions: sessions,
		now:      time.Now,
		logger:   logger,
		state:    Initial(),
	}
}

// Load は保存済みの登録情報とメールアドレスを読み込む。
// 認証済みでプロフィール未作成のユーザーは本人情報入力から、それ以外は大学選択から再開する。
func (f *Flow) Load(ctx context.Context) error {
	var data Accumulator
	if _, err := f.ns.GetJSON(ctx, keyAccumulator, &data); err != nil {
		return err
	}
	email, _, err := f.ns.GetString(ctx, keyEmail)
	if err != nil {
		return err
	}

	step := StepUniversity
	if f.sessions.IsAuthenticated(ctx) {
		user, err := f.sessions.UserData(ctx)
		if err != nil {
			return err
		}
		if user != nil && !user.IsProfileComplete {
			step = StepWhoAreYou
			if email == "" {
				email = user.Email
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = State{Step: step, Email: email, Data: data}
	return nil
}

// State は現在の状態を返す。
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Step は現在のステップを返す。
func (f *Flow) Step() Step {
	return f.State().Step
}

// Prefill はstepの入力欄に表示する保存済みの値を返す。
func (f *Flow) Prefill(step Step) Accumulator {
	return Prefill(f.State(), step)
}

// Pending はactionのリモート呼び出しが実行中かを返す（resource.SendOTPなど）。
func (f *Flow) Pending(action query.Mutation) bool {
	return f.remote.Pending(action)
}

// SelectUniversity は大学を選択してメールアドレス入力に進む。
func (f *Flow) SelectUniversity(ctx context.Context, universityID string) error {
	return f.apply(ctx, UniversitySelected{University: universityID})
}

// SubmitEmail はOTPを送信してOTP入力に進む。
// 送信済み（409）の場合も成功として扱い、alreadySent=trueを返す。
func (f *Flow) SubmitEmail(ctx context.Context, email string) (alreadySent bool, err error) {
	ev := EmailSubmitted{Email: email}
	next, err := Transition(f.State(), ev)
	if err != nil {
		return false, err
	}

	if _, err := f.remote.SendOTP(ctx, next.Email, false); err != nil {
		if !model.IsConflict(err) {
			return false, err
		}
		alreadySent = true
		f.logger.Info("OTPは送信済みのため入力画面に進みます", slog.String("email", next.Email))
	}

	if err := f.apply(ctx, ev); err != nil {
		return false, err
	}
	return alreadySent, nil
}

// ResendOTP は現在のメールアドレスにOTPを再送する。ステップは変えない。
func (f *Flow) ResendOTP(ctx context.Context) (alreadySent bool, err error) {
	st := f.State()
	if st.Step != StepOTP {
		return false, unexpected(st, EmailSubmitted{Email: st.Email})
	}
	if _, err := f.remote.SendOTP(ctx, st.Email, false); err != nil {
		if model.IsConflict(err) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// VerifyOTP はOTPを検証し、トークンとユーザー情報を保存して本人情報の入力に進む。
func (f *Flow) VerifyOTP(ctx context.Context, code string) (*model.UserIdentity, error) {
	st := f.State()
	if st.Step != StepOTP {
		return nil, unexpected(st, OTPVerified{})
	}
	if err := validation.OTP(code); err != nil {
		return nil, err
	}

	res, err := f.remote.VerifyOTP(ctx, st.Email, code)
	if err != nil {
		return nil, err
	}
	if err := f.sessions.SetTokens(ctx, res.Tokens); err != nil {
		return nil, err
	}
	if err := f.sessions.SetUserData(ctx, res.User); err != nil {
		return nil, err
	}

	if err := f.apply(ctx, OTPVerified{}); err != nil {
		return nil, err
	}
	user := res.User
	return &user, nil
}

// SubmitWhoAreYou は氏名と性別を保存して生年月日の入力に進む。
func (f *Flow) SubmitWhoAreYou(ctx context.Context, name string, gender model.Gender) error {
	return f.apply(ctx, WhoAreYouSubmitted{Name: name, Gender: gender})
}

// SubmitDateOfBirth は生年月日を保存して学位の入力に進む。
func (f *Flow) SubmitDateOfBirth(ctx context.Context, day, month, year string) error {
	return f.apply(ctx, DateOfBirthSubmitted{Day: day, Month: month, Year: year, Today: f.now()})
}

// SubmitDegree は学位と学年を保存し、プロフィールを作成する。
// 作成に成功した場合のみ完了ステップに進み、登録情報を消去する。
// 失敗した場合は学位ステップに留まりエラーを返す。
func (f *Flow) SubmitDegree(ctx context.Context, degree, year string) (string, error) {
	if err := f.apply(ctx, DegreeSubmitted{Degree: degree, Year: year}); err != nil {
		return "", err
	}

	st := f.State()
	userID, err := f.remote.CreateProfile(ctx, st.Data.ProfileInput())
	if err != nil {
		f.logger.Warn("プロフィール作成に失敗しました", slog.String("error", err.Error()))
		if _, terr := Transition(st, ProfileFailed{Err: err}); terr != nil {
			return "", terr
		}
		return "", err
	}

	if err := f.sessions.MarkProfileComplete(ctx); err != nil {
		return "", err
	}
	if err := f.apply(ctx, ProfileCreated{}); err != nil {
		return "", err
	}
	if err := f.ns.Clear(ctx); err != nil {
		return "", fmt.Errorf("failed to clear signup data: %w", err)
	}
	f.logger.Info("プロフィールを作成しました", slog.String("user_id", userID))
	return userID, nil
}

// Back は1つ前のステップに戻る。入力済みの値は保持する。
func (f *Flow) Back(ctx context.Context) (Step, error) {
	if err := f.apply(ctx, Back{}); err != nil {
		return f.Step(), err
	}
	return f.Step(), nil
}

// Abandon は登録を中断し、保存済みの登録情報を消去する。
func (f *Flow) Abandon(ctx context.Context) error {
	f.mu.Lock()
	f.state = State{Step: StepConnect}
	f.mu.Unlock()
	return f.ns.Clear(ctx)
}

// apply はevで状態を進め、遷移が成功した場合に登録情報を保存する。
func (f *Flow) apply(ctx context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next, err := Transition(f.state, ev)
	if err != nil {
		return err
	}
	if next.Step != StepSuccess {
		if err := f.persist(ctx, next); err != nil {
			return err
		}
	}
	f.state = next
	return nil
}

func (f *Flow) persist(ctx context.Context, s State) error {
	if err := f.ns.SetJSON(ctx, keyAccumulator, s.Data); err != nil {
		return err
	}
	if s.Email == "" {
		return nil
	}
	return f.ns.SetString(ctx, keyEmail, s.Email)
}
