package model

// SessionTokens はリモートAPIのBearer認証情報の組を表す。
// OTP検証成功時に作成され、401応答時に透過的に更新される。
type SessionTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// UserIdentity はキャッシュされる最小限のユーザー情報を表す。
type UserIdentity struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	IsProfileComplete bool   `json:"isProfileComplete"`
}

// Gender は性別の列挙値。
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Valid は定義済みの値かを返す。
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// StudyYears は学年として選択可能な値（順序付き）。
var StudyYears = []string{"1st", "2nd", "3rd", "4th", "5th"}

// StudyYearNumber は "1st".."5th" を1..5に変換する。該当しない場合は0を返す。
func StudyYearNumber(year string) int {
	for i, y := range StudyYears {
		if y == year {
			return i + 1
		}
	}
	return 0
}

// University は大学の参照情報を表す。
type University struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

// ProfileInput はプロフィール作成APIへの入力を表す。
type ProfileInput struct {
	Name       string   `json:"name"`
	DOB        string   `json:"dob"`
	Gender     Gender   `json:"gender"`
	University string   `json:"university"`
	Degree     string   `json:"degree"`
	Year       int      `json:"year"`
	Skills     []string `json:"skills"`
	Friends    []string `json:"friends"`
}

// UserProfile はプロフィール取得APIが返すユーザー情報を表す。
type UserProfile struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	DOB        string   `json:"dob,omitempty"`
	Gender     Gender   `json:"gender,omitempty"`
	University string   `json:"university,omitempty"`
	Degree     string   `json:"degree,omitempty"`
	Year       int      `json:"year,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	AvatarURL  string   `json:"avatarUrl,omitempty"`
}
