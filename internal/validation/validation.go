// Package validation は各ステップの入力値をリモート呼び出し前に検証する。
// 失敗時は対象フィールド付きのバリデーションエラー（model.APIError）を返す。
package validation

import (
	"net/mail"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/citadel/internal/model"
)

const (
	// OTPLength はワンタイムパスコードの桁数。
	OTPLength = 4
	// MaxNameLength は氏名の最大文字数。
	MaxNameLength = 50
	// MinAge は登録可能な最低年齢。
	MinAge = 16
	// MinBirthYear は生年の下限。
	MinBirthYear = 1900
)

// DateLayout は生年月日の保存形式（ISO 8601）。
const DateLayout = "2006-01-02"

// Email はメールアドレスの形式を検証する。前後の空白は除いて評価する。
func Email(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return model.NewValidationError("email", "メールアドレスを入力してください。")
	}
	addr, err := mail.ParseAddress(email)
	// 表示名付きの形式（"Name <a@b>"）は受け付けない
	if err != nil || addr.Address != email {
		return model.NewValidationError("email", "メールアドレスの形式が正しくありません。")
	}
	at := strings.LastIndex(email, "@")
	if !strings.Contains(email[at+1:], ".") {
		return model.NewValidationError("email", "メールアドレスのドメインが正しくありません。")
	}
	return nil
}

// OTP はワンタイムパスコードがちょうどOTPLength桁の数字であることを検証する。
func OTP(code string) error {
	if len(code) != OTPLength {
		return model.NewValidationError("otp", "認証コードは"+strconv.Itoa(OTPLength)+"桁で入力してください。")
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return model.NewValidationError("otp", "認証コードは数字のみで入力してください。")
		}
	}
	return nil
}

// Name は氏名が空でなく最大文字数以内であることを検証する。
func Name(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.NewValidationError("name", "名前を入力してください。")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return model.NewValidationError("name", "名前は"+strconv.Itoa(MaxNameLength)+"文字以内で入力してください。")
	}
	return nil
}

// Gender は性別が定義済みの値であることを検証する。
func Gender(g model.Gender) error {
	if !g.Valid() {
		return model.NewValidationError("gender", "性別を選択してください。")
	}
	return nil
}

// DateOfBirth は日・月・年の文字列が実在する日付で、
// 年が1900年から現在の年の範囲にあり、nowの時点でMinAge歳以上であることを検証する。
// 成功時はISO形式の日付文字列を返す。
func DateOfBirth(day, month, year string, now time.Time) (string, error) {
	d, errD := strconv.Atoi(strings.TrimSpace(day))
	m, errM := strconv.Atoi(strings.TrimSpace(month))
	y, errY := strconv.Atoi(strings.TrimSpace(year))
	if errD != nil || errM != nil || errY != nil {
		return "", model.NewValidationError("dob", "生年月日を数字で入力してください。")
	}
	if y < MinBirthYear || y > now.Year() {
		return "", model.NewValidationError("dob", "生年が正しくありません。")
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return "", model.NewValidationError("dob", "生年月日が正しくありません。")
	}

	// time.Dateは範囲外の日を翌月に繰り越すため、往復して実在日付か確認する
	dob := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if dob.Day() != d || int(dob.Month()) != m {
		return "", model.NewValidationError("dob", "存在しない日付です。")
	}

	if age(dob, now) < MinAge {
		return "", model.NewValidationError("dob", "登録は"+strconv.Itoa(MinAge)+"歳以上の方に限られます。")
	}
	return dob.Format(DateLayout), nil
}

// ParseDateOfBirth はISO形式の生年月日を日・月・年の文字列に分解する。
// 戻るナビゲーション時の入力欄の復元に使う。
func ParseDateOfBirth(iso string) (day, month, year string, ok bool) {
	t, err := time.Parse(DateLayout, iso)
	if err != nil {
		return "", "", "", false
	}
	return strconv.Itoa(t.Day()), strconv.Itoa(int(t.Month())), strconv.Itoa(t.Year()), true
}

func age(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

// Degree は学位が空でないことを検証する。
func Degree(degree string) error {
	if strings.TrimSpace(degree) == "" {
		return model.NewValidationError("degree", "学位を入力してください。")
	}
	return nil
}

// StudyYear は学年が"1st".."5th"のいずれかであることを検証する。
func StudyYear(year string) error {
	if !slices.Contains(model.StudyYears, year) {
		return model.NewValidationError("year", "学年を選択してください。")
	}
	return nil
}

// University は大学IDが選択されていることを検証する。
func University(id string) error {
	if strings.TrimSpace(id) == "" {
		return model.NewValidationError("university", "大学を選択してください。")
	}
	return nil
}

// City は都市が選択可能であること（利用可能かつ準備中でない）を検証する。
func City(city model.City) error {
	if city.ID == "" {
		return model.NewValidationError("city", "都市を選択してください。")
	}
	if !city.Selectable() {
		return model.NewCityUnavailableError(city.Name)
	}
	return nil
}

// Areas はエリアが1つ以上選択され、すべて都市に属することを検証する。
func Areas(city model.City, areas []string) error {
	if len(areas) == 0 {
		return model.NewValidationError("areas", "エリアを1つ以上選択してください。")
	}
	for _, a := range areas {
		if !city.HasArea(a) {
			return model.NewValidationError("areas", a+" は "+city.Name+" のエリアではありません。")
		}
	}
	return nil
}
