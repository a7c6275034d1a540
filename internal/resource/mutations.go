package resource

import "github.com/hitoshi/citadel/internal/query"

// ミューテーションと、成功時に無効化するキャッシュキーの宣言。
var (
	SendOTP = query.Mutation{
		Name: "sendOTP",
	}
	VerifyOTP = query.Mutation{
		Name:        "verifyOTP",
		Invalidates: AllKeys,
	}
	SavePreferences = query.Mutation{
		Name:        "savePreferences",
		Invalidates: []query.Key{PreferencesKey, {ResourceEvents}},
	}
	UpdatePreferences = query.Mutation{
		Name:        "updatePreferences",
		Invalidates: []query.Key{PreferencesKey, {ResourceEvents}},
	}
	SubmitQuiz = query.Mutation{
		Name:        "submitQuiz",
		Invalidates: []query.Key{QuizStatusKey},
	}
	CreateProfile = query.Mutation{
		Name:        "createProfile",
		Invalidates: []query.Key{ProfileKey},
	}
	CreateOrder = query.Mutation{
		Name:        "createOrder",
		Invalidates: []query.Key{{ResourceBookings}, {ResourceEvents}, {ResourceEvent}},
	}
	VerifyPayment = query.Mutation{
		Name:        "verifyPayment",
		Invalidates: []query.Key{{ResourceBookings}, {ResourceEvents}, {ResourceEvent}},
	}
)
