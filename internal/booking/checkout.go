package booking

import (
	"context"
	"strings"

	"github.com/hitoshi/citadel/internal/model"
)

// MaxGuests は1回の予約で指定できる人数の上限。
const MaxGuests = 10

// CreateOrder はイベントの決済注文を作成する。金額はイベント価格×人数。
func (f *Flow) CreateOrder(ctx context.Context, event model.DinnerEvent, guests int) (*model.PaymentOrderResult, error) {
	if event.ID == "" {
		return nil, model.NewValidationError("event", "イベントを選択してください。")
	}
	if guests < 1 || guests > MaxGuests {
		return nil, model.NewValidationError("guests", "人数が正しくありません。")
	}

	user, err := f.users.UserData(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil || user.ID == "" {
		return nil, model.NewUnauthorizedError(401, "ログインが必要です。")
	}

	return f.remote.CreatePaymentOrder(ctx, OrderInput(user.ID, event, guests))
}

// OrderInput は決済注文APIへの入力を組み立てる。
func OrderInput(userID string, event model.DinnerEvent, guests int) model.PaymentOrderInput {
	location := event.Venue
	if location == "" {
		location = strings.TrimSpace(strings.Join([]string{event.Area, event.City}, " "))
	}
	return model.PaymentOrderInput{
		UserID:      userID,
		EventID:     event.ID,
		EventType:   model.PaymentEventTypeDinner,
		Amount:      event.Price * float64(guests),
		Currency:    model.PaymentCurrencyINR,
		BookingDate: event.Date,
		BookingTime: event.Time,
		Location:    location,
		Guests:      guests,
	}
}

// ConfirmPayment は決済SDKから受け取った署名付きの結果を検証し、予約を確定する。
func (f *Flow) ConfirmPayment(ctx context.Context, v model.PaymentVerification) (*model.PaymentConfirmation, error) {
	switch {
	case v.OrderID == "":
		return nil, model.NewValidationError("razorpay_order_id", "決済情報が不足しています。")
	case v.PaymentID == "":
		return nil, model.NewValidationError("razorpay_payment_id", "決済情報が不足しています。")
	case v.Signature == "":
		return nil, model.NewValidationError("razorpay_signature", "決済情報が不足しています。")
	}
	return f.remote.VerifyPayment(ctx, v)
}
