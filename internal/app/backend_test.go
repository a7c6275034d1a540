package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// fakeBackend はCitadel APIの最小限の振る舞いを再現するテスト用サーバー。
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu                sync.Mutex
	profileComplete   bool
	quizCompleted     bool
	hasPreferences    bool
	calls             []string
	lastPreferences   map[string]any
	lastQuizTypes     []string
	lastProfileInput  map[string]any
	lastOrderRequest  map[string]any
	lastVerifyPayment map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{t: t}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/send-otp", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "OTP sent", "expiresIn": 300})
	})
	mux.HandleFunc("POST /v1/auth/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Email string `json:"email"`
			OTP   string `json:"otp"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.OTP != "1234" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid OTP"})
			return
		}
		b.mu.Lock()
		complete := b.profileComplete
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"tokens":  map[string]string{"accessToken": b.token(), "refreshToken": "refresh-1"},
			"user":    map[string]any{"id": "user-1", "email": in.Email, "isProfileComplete": complete},
		})
	})
	mux.HandleFunc("POST /v1/onboarding", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		b.mu.Lock()
		b.lastProfileInput = in
		b.profileComplete = true
		b.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "userId": "user-1"})
	})
	mux.HandleFunc("GET /v1/profile/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"id": "user-1", "email": "a@uni.edu", "name": "Asha", "university": "iisc", "degree": "BSc", "year": 2,
		}})
	})
	mux.HandleFunc("GET /v1/dinner-events/upcoming", func(w http.ResponseWriter, r *http.Request) {
		city := r.URL.Query().Get("city")
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"events": []map[string]any{{
				"id": "slot_42", "title": "<b>Friday</b> dinner", "city": city, "area": "Indiranagar",
				"date": "2025-06-06", "time": "20:00", "price": 1500, "availableSeats": 4, "totalSeats": 6,
			}},
			"totalEvents": 1,
		}})
	})
	mux.HandleFunc("GET /v1/dinner-events/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"id": r.PathValue("id"), "city": "Bengaluru", "area": "Indiranagar", "venue": "The Table",
			"date": "2025-06-06", "time": "20:00", "price": 1500, "availableSeats": 4, "totalSeats": 6,
		}})
	})
	mux.HandleFunc("GET /v1/dinner-events/bookings/my", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"bookings": []map[string]any{{"id": "bk_1", "eventId": "slot_42", "status": r.URL.Query().Get("type"), "guests": 2}},
		}})
	})
	mux.HandleFunc("GET /v1/dinner-preferences", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		has := b.hasPreferences
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"hasCompletedSetup": has}})
	})
	savePrefs := func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		b.mu.Lock()
		b.lastPreferences = in
		b.hasPreferences = true
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"hasCompletedSetup": true, "preferences": in}})
	}
	mux.HandleFunc("POST /v1/dinner-preferences/initial", savePrefs)
	mux.HandleFunc("PATCH /v1/dinner-preferences", savePrefs)
	mux.HandleFunc("GET /v1/quiz/status", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		done := b.quizCompleted
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"hasCompletedQuiz": done}})
	})
	mux.HandleFunc("POST /v1/quiz/submit", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			QuizType string `json:"quizType"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		b.mu.Lock()
		b.lastQuizTypes = append(b.lastQuizTypes, in.QuizType)
		if in.QuizType == "onboarding" {
			b.quizCompleted = true
		}
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /v1/payments/create-order", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		b.mu.Lock()
		b.lastOrderRequest = in
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"order": map[string]any{"id": "order_9", "amount": in["amount"], "currency": "INR"},
		}})
	})
	mux.HandleFunc("POST /v1/payments/verify", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		b.mu.Lock()
		b.lastVerifyPayment = in
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"bookingId": "bk_2", "paymentId": in["razorpay_payment_id"]}})
	})

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls = append(b.calls, r.Method+" "+r.URL.Path)
		b.mu.Unlock()
		if strings.HasPrefix(r.URL.Path, "/v1/") && !strings.HasPrefix(r.URL.Path, "/v1/auth/") {
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "missing token"})
				return
			}
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) URL() string {
	return b.srv.URL
}

func (b *fakeBackend) token() string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		b.t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func (b *fakeBackend) called(call string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == call {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
