package model

// QuizType はクイズの種別。
type QuizType string

const (
	// QuizTypeOnboarding は初回のみ回答するオンボーディングクイズ。
	QuizTypeOnboarding QuizType = "onboarding"
	// QuizTypePersonality は予約ごとに回答する性格診断クイズ。
	QuizTypePersonality QuizType = "personality"
)

// QuizAnswer は1問分の回答を表す。
type QuizAnswer struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// QuizSubmission はクイズ回答送信APIへの入力を表す。
type QuizSubmission struct {
	QuizType QuizType     `json:"quizType"`
	EventID  string       `json:"eventId,omitempty"`
	Answers  []QuizAnswer `json:"answers"`
}

// QuizStatus はクイズ回答状況APIのdata部を表す。
type QuizStatus struct {
	HasCompletedQuiz bool `json:"hasCompletedQuiz"`
}
