// Package signup は新規登録のステップフローを提供する。
// 状態遷移は純粋関数Transitionで表し、Flowがリモート呼び出しと永続化を担う。
package signup

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/validation"
)

// Step は登録フローの現在のステップ。
type Step string

const (
	StepConnect     Step = "connect"
	StepUniversity  Step = "university"
	StepEmail       Step = "email"
	StepOTP         Step = "otp"
	StepWhoAreYou   Step = "whoAreYou"
	StepDateOfBirth Step = "dateOfBirth"
	StepDegree      Step = "degree"
	StepSuccess     Step = "success"
)

// steps は前進順のステップ一覧。
var steps = []Step{StepUniversity, StepEmail, StepOTP, StepWhoAreYou, StepDateOfBirth, StepDegree, StepSuccess}

var (
	// ErrIncompleteSignup は最終ステップで必須項目が揃っていないことを示す。
	ErrIncompleteSignup = errors.New("signup: incomplete signup data")
	// ErrUnexpectedEvent は現在のステップで受け付けないイベントを示す。
	ErrUnexpectedEvent = errors.New("signup: unexpected event for step")
)

// Accumulator はステップをまたいで集めた登録情報。
type Accumulator struct {
	University string       `json:"university,omitempty"`
	Name       string       `json:"name,omitempty"`
	Gender     model.Gender `json:"gender,omitempty"`
	DOB        string       `json:"dob,omitempty"`
	Degree     string       `json:"degree,omitempty"`
	Year       string       `json:"year,omitempty"`
}

// Missing はプロフィール作成に必要で未入力の項目名を返す。
func (a Accumulator) Missing() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"university", a.University},
		{"name", a.Name},
		{"gender", string(a.Gender)},
		{"dob", a.DOB},
		{"degree", a.Degree},
		{"year", a.Year},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// ProfileInput はプロフィール作成APIへの入力に変換する。学年は数値に変換する。
func (a Accumulator) ProfileInput() model.ProfileInput {
	return model.ProfileInput{
		Name:       a.Name,
		DOB:        a.DOB,
		Gender:     a.Gender,
		University: a.University,
		Degree:     a.Degree,
		Year:       model.StudyYearNumber(a.Year),
		Skills:     []string{},
		Friends:    []string{},
	}
}

// State は登録フローの状態。
type State struct {
	Step  Step
	Email string
	Data  Accumulator
}

// Initial は登録フロー開始時の状態を返す。
func Initial() State {
	return State{Step: StepUniversity}
}

// Event は状態遷移を引き起こす入力。
type Event interface {
	event()
}

type (
	// UniversitySelected は大学の選択。
	UniversitySelected struct{ University string }
	// EmailSubmitted はOTP送信に成功した（または送信済みだった）メールアドレス。
	EmailSubmitted struct{ Email string }
	// OTPVerified はOTP検証の成功。
	OTPVerified struct{}
	// WhoAreYouSubmitted は氏名と性別の入力。
	WhoAreYouSubmitted struct {
		Name   string
		Gender model.Gender
	}
	// DateOfBirthSubmitted は生年月日の入力。Todayは年齢判定の基準日。
	DateOfBirthSubmitted struct {
		Day, Month, Year string
		Today            time.Time
	}
	// DegreeSubmitted は学位と学年の入力。
	DegreeSubmitted struct{ Degree, Year string }
	// ProfileCreated はプロフィール作成の成功。
	ProfileCreated struct{}
	// ProfileFailed はプロフィール作成の失敗。
	ProfileFailed struct{ Err error }
	// Back は1つ前のステップへの移動。
	Back struct{}
)

func (UniversitySelected) event()   {}
func (EmailSubmitted) event()       {}
func (OTPVerified) event()          {}
func (WhoAreYouSubmitted) event()   {}
func (DateOfBirthSubmitted) event() {}
func (DegreeSubmitted) event()      {}
func (ProfileCreated) event()       {}
func (ProfileFailed) event()        {}
func (Back) event()                 {}

// Transition はsにevを適用した次の状態を返す。
// 検証に失敗した場合はsをそのまま返し、エラーを返す。
// 前進は入力が検証を通った場合のみ、戻る場合は入力値を保持したまま1つ前に移る。
func Transition(s State, ev Event) (State, error) {
	switch ev.(type) {
	case Back:
		return back(s)
	case ProfileFailed:
		if s.Step != StepDegree {
			return s, unexpected(s, ev)
		}
		return s, nil
	}

	next := s
	switch e := ev.(type) {
	case UniversitySelected:
		if s.Step != StepUniversity {
			return s, unexpected(s, ev)
		}
		if err := validation.University(e.University); err != nil {
			return s, err
		}
		next.Data.University = strings.TrimSpace(e.University)
		next.Step = StepEmail

	case EmailSubmitted:
		if s.Step != StepEmail {
			return s, unexpected(s, ev)
		}
		if err := validation.Email(e.Email); err != nil {
			return s, err
		}
		next.Email = strings.TrimSpace(e.Email)
		next.Step = StepOTP

	case OTPVerified:
		if s.Step != StepOTP {
			return s, unexpected(s, ev)
		}
		next.Step = StepWhoAreYou

	case WhoAreYouSubmitted:
		if s.Step != StepWhoAreYou {
			return s, unexpected(s, ev)
		}
		if err := validation.Name(e.Name); err != nil {
			return s, err
		}
		if err := validation.Gender(e.Gender); err != nil {
			return s, err
		}
		next.Data.Name = strings.TrimSpace(e.Name)
		next.Data.Gender = e.Gender
		next.Step = StepDateOfBirth

	case DateOfBirthSubmitted:
		if s.Step != StepDateOfBirth {
			return s, unexpected(s, ev)
		}
		dob, err := validation.DateOfBirth(e.Day, e.Month, e.Year, e.Today)
		if err != nil {
			return s, err
		}
		next.Data.DOB = dob
		next.Step = StepDegree

	case DegreeSubmitted:
		if s.Step != StepDegree {
			return s, unexpected(s, ev)
		}
		if err := validation.Degree(e.Degree); err != nil {
			return s, err
		}
		if err := validation.StudyYear(e.Year); err != nil {
			return s, err
		}
		next.Data.Degree = strings.TrimSpace(e.Degree)
		next.Data.Year = e.Year
		if missing := next.Data.Missing(); len(missing) > 0 {
			return s, fmt.Errorf("%w: %w", ErrIncompleteSignup, model.NewIncompleteSignupError(missing))
		}
		// プロフィール作成の応答を待つためステップは進めない

	case ProfileCreated:
		if s.Step != StepDegree {
			return s, unexpected(s, ev)
		}
		if missing := s.Data.Missing(); len(missing) > 0 {
			return s, fmt.Errorf("%w: %w", ErrIncompleteSignup, model.NewIncompleteSignupError(missing))
		}
		next = State{Step: StepSuccess}

	default:
		return s, unexpected(s, ev)
	}
	return next, nil
}

func back(s State) (State, error) {
	switch s.Step {
	case StepUniversity:
		s.Step = StepConnect
		return s, nil
	case StepConnect, StepSuccess:
		return s, fmt.Errorf("%w: cannot go back from %s", ErrUnexpectedEvent, s.Step)
	}
	for i, st := range steps {
		if st == s.Step && i > 0 {
			s.Step = steps[i-1]
			return s, nil
		}
	}
	return s, fmt.Errorf("%w: unknown step %q", ErrUnexpectedEvent, s.Step)
}

func unexpected(s State, ev Event) error {
	return fmt.Errorf("%w: %T at %s", ErrUnexpectedEvent, ev, s.Step)
}

// Prefill はstepの入力欄に表示する保存済みの値を返す。
// 該当ステップに属さない項目は空になる。
func Prefill(s State, step Step) Accumulator {
	switch step {
	case StepUniversity:
		return Accumulator{University: s.Data.University}
	case StepWhoAreYou:
		return Accumulator{Name: s.Data.Name, Gender: s.Data.Gender}
	case StepDateOfBirth:
		return Accumulator{DOB: s.Data.DOB}
	case StepDegree:
		return Accumulator{Degree: s.Data.Degree, Year: s.Data.Year}
	}
	return Accumulator{}
}
