package model

// 決済注文で固定される値。
const (
	PaymentEventTypeDinner = "dinner"
	PaymentCurrencyINR     = "INR"
)

// PaymentOrderInput は決済注文作成APIへの入力を表す。
type PaymentOrderInput struct {
	UserID      string  `json:"userId"`
	EventID     string  `json:"eventId"`
	EventType   string  `json:"eventType"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	BookingDate string  `json:"bookingDate"`
	BookingTime string  `json:"bookingTime"`
	Location    string  `json:"location"`
	Guests      int     `json:"guests"`
}

// PaymentOrder は決済ゲートウェイ側の注文情報を表す。
type PaymentOrder struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Receipt  string  `json:"receipt,omitempty"`
}

// PaymentOrderResult は決済注文作成APIのdata部を表す。
type PaymentOrderResult struct {
	Order   PaymentOrder   `json:"order"`
	Booking map[string]any `json:"booking,omitempty"`
	Payment map[string]any `json:"payment,omitempty"`
}

// PaymentVerification は決済SDKから受け取る署名付きの結果を表す。
type PaymentVerification struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// PaymentConfirmation は決済検証APIのdata部を表す。
type PaymentConfirmation struct {
	BookingID string `json:"bookingId"`
	PaymentID string `json:"paymentId"`
}
