package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lkrent/lkrent-server/internal/domain"
	"github.com/lkrent/lkrent-server/internal/http/handlers"
	"github.com/lkrent/lkrent-server/internal/otp"
	"github.com/lkrent/lkrent-server/internal/service"
	"github.com/lkrent/lkrent-server/pkg/config"
)

// ---------- Mocks ----------

type mockUserRepo struct {
	mu      sync.Mutex
	nextID  int64
	byPhone map[string]*domain.User
	byID    map[int64]*domain.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		nextID:  1,
		byPhone: make(map[string]*domain.User),
		byID:    make(map[int64]*domain.User),
	}
}

func (m *mockUserRepo) Create(_ context.Context, req *domain.CreateUserRequest, passwordHash string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byPhone[req.PhoneNumber]; exists {
		return nil, &domain.ConflictError{Field: "phone_number"}
	}
	u := &domain.User{
		ID:           m.nextID,
		PhoneNumber:  req.PhoneNumber,
		Email:        req.Email,
		PasswordHash: passwordHash,
		FullName:     req.FullName,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.nextID++
	m.byPhone[u.PhoneNumber] = u
	m.byID[u.ID] = u
	return u, nil
}

func (m *mockUserRepo) FindByPhone(_ context.Context, phone string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPhone[phone], nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id], nil
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, id int64, req *domain.UpdateProfileRequest) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	if req.FullName != nil {
		u.FullName = *req.FullName
	}
	if req.AvatarURL != nil {
		u.AvatarURL = *req.AvatarURL
	}
	if req.Email != nil {
		u.Email = req.Email
		u.EmailVerified = false
	}
	u.UpdatedAt = time.Now()
	return u, nil
}

func (m *mockUserRepo) MarkEmailVerified(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		u.EmailVerified = true
		return nil
	}
	return domain.ErrUserNotFound
}

func (m *mockUserRepo) MarkPhoneVerified(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		u.PhoneNumberVerified = true
		return nil
	}
	return domain.ErrUserNotFound
}

type mockChallengeRepo struct {
	mu         sync.Mutex
	challenges map[string]*domain.OtpChallenge
}

func newMockChallengeRepo() *mockChallengeRepo {
	return &mockChallengeRepo{challenges: make(map[string]*domain.OtpChallenge)}
}

func ckey(userID int64, purpose string) string {
	return fmt.Sprintf("%d|%s", userID, purpose)
}

func (m *mockChallengeRepo) Upsert(_ context.Context, userID int64, purpose, codeHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[ckey(userID, purpose)] = &domain.OtpChallenge{
		UserID:    userID,
		Purpose:   purpose,
		CodeHash:  codeHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *mockChallengeRepo) Find(_ context.Context, userID int64, purpose string) (*domain.OtpChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[ckey(userID, purpose)]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (m *mockChallengeRepo) IncrementAttempts(_ context.Context, userID int64, purpose string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.challenges[ckey(userID, purpose)]; ok && ch.ConsumedAt == nil {
		ch.Attempts++
	}
	return nil
}

func (m *mockChallengeRepo) Consume(_ context.Context, userID int64, purpose string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[ckey(userID, purpose)]
	if !ok || ch.ConsumedAt != nil || time.Now().After(ch.ExpiresAt) {
		return false, nil
	}
	now := time.Now()
	ch.ConsumedAt = &now
	return true, nil
}

func (m *mockChallengeRepo) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type mockMailer struct {
	sent chan string
}

func newMockMailer() *mockMailer {
	return &mockMailer{sent: make(chan string, 8)}
}

func (m *mockMailer) SendOtpEmail(toEmail, toName, code string, expiresIn time.Duration) error {
	m.sent <- code
	return nil
}

func (m *mockMailer) waitForCode(t *testing.T) string {
	t.Helper()
	select {
	case code := <-m.sent:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivered code")
		return ""
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (noopPublisher) Close() error                                       { return nil }

type noopLimiter struct{}

func (noopLimiter) Cooldown(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (noopLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

// ---------- Test server ----------

type testEnv struct {
	router *chi.Mux
	mailer *mockMailer
	users  *mockUserRepo
}

func newTestEnv() *testEnv {
	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret: "test-secret",
			TokenTTL:  time.Hour,
		},
		Otp: config.OtpConfig{
			Window:          5 * time.Minute,
			MaxAttempts:     5,
			RequestCooldown: time.Minute,
		},
	}

	users := newMockUserRepo()
	challenges := newMockChallengeRepo()
	mail := newMockMailer()

	engine := otp.NewEngine(challenges, users, mail, noopPublisher{}, noopLimiter{}, cfg)
	svc := service.NewAuthService(users, engine, noopPublisher{}, cfg)
	h := handlers.New(svc, noopLimiter{}, cfg)

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireJWT)
			r.Get("/info", h.Info)
			r.Put("/profile", h.UpdateProfile)

			r.Group(func(r chi.Router) {
				r.Use(h.OtpRateLimit())
				r.Post("/request-otp", h.RequestOtp)
				r.Post("/verify-otp", h.VerifyOtp)
			})
		})
	})

	return &testEnv{router: r, mailer: mail, users: users}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(t *testing.T) (token string, userID int64) {
	t.Helper()
	w := e.do(t, "POST", "/auth/register", "", map[string]interface{}{
		"phone_number": "+84901234567",
		"password":     "correct-horse",
		"full_name":    "Nguyen Van A",
		"email":        "rider@example.com",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp.Token, resp.User.ID
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Code
}

// ---------- Tests ----------

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv()
	token, _ := env.register(t)
	if token == "" {
		t.Fatal("expected token in register response")
	}

	w := env.do(t, "POST", "/auth/login", "", map[string]string{
		"phone_number": "+84901234567",
		"password":     "correct-horse",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	env := newTestEnv()
	env.register(t)

	w := env.do(t, "POST", "/auth/register", "", map[string]interface{}{
		"phone_number": "+84901234567",
		"password":     "another-pass",
		"full_name":    "Nguyen Van B",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if code := errCode(t, w); code != "DUPLICATE_PHONE" {
		t.Errorf("code = %q, want DUPLICATE_PHONE", code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv()
	env.register(t)

	w := env.do(t, "POST", "/auth/login", "", map[string]string{
		"phone_number": "+84901234567",
		"password":     "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if code := errCode(t, w); code != "INVALID_CREDENTIALS" {
		t.Errorf("code = %q, want INVALID_CREDENTIALS", code)
	}
}

func TestInfoRequiresToken(t *testing.T) {
	env := newTestEnv()

	if w := env.do(t, "GET", "/auth/info", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no-token status = %d, want 401", w.Code)
	}
	if w := env.do(t, "GET", "/auth/info", "not-a-jwt", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad-token status = %d, want 401", w.Code)
	}
}

func TestInfoReturnsProfile(t *testing.T) {
	env := newTestEnv()
	token, userID := env.register(t)

	w := env.do(t, "GET", "/auth/info", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var info domain.UserInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.ID != userID {
		t.Errorf("id = %d, want %d", info.ID, userID)
	}
	if info.EmailVerified {
		t.Error("fresh account must not be email-verified")
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv()
	token, _ := env.register(t)

	w := env.do(t, "PUT", "/auth/profile", token, map[string]string{
		"full_name":  "Nguyen Van B",
		"avatar_url": "https://cdn.example.com/avatar.png",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var info domain.UserInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if info.FullName != "Nguyen Van B" {
		t.Errorf("full_name = %q", info.FullName)
	}
	if info.AvatarURL != "https://cdn.example.com/avatar.png" {
		t.Errorf("avatar_url = %q", info.AvatarURL)
	}
}

func TestOtpFlow(t *testing.T) {
	env := newTestEnv()
	token, _ := env.register(t)

	// Request a code for email verification.
	w := env.do(t, "POST", "/auth/request-otp", token, map[string]string{"purpose": "email"})
	if w.Code != http.StatusCreated {
		t.Fatalf("request-otp status = %d, body %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte(`"code":"`)) {
		t.Fatal("response must not leak the code")
	}
	code := env.mailer.waitForCode(t)

	// Wrong code first.
	w = env.do(t, "POST", "/auth/verify-otp", token, map[string]string{
		"purpose": "email", "code": "000000",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong-code status = %d", w.Code)
	}
	if c := errCode(t, w); c != "CODE_MISMATCH" {
		t.Errorf("code = %q, want CODE_MISMATCH", c)
	}

	// Then the real one.
	w = env.do(t, "POST", "/auth/verify-otp", token, map[string]string{
		"purpose": "email", "code": code,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("verify-otp status = %d, body %s", w.Code, w.Body.String())
	}

	// The email flag is now visible on the profile.
	w = env.do(t, "GET", "/auth/info", token, nil)
	var info domain.UserInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if !info.EmailVerified {
		t.Error("expected email_verified after successful OTP")
	}

	// Replay fails: the challenge is consumed.
	w = env.do(t, "POST", "/auth/verify-otp", token, map[string]string{
		"purpose": "email", "code": code,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("replay status = %d, want 400", w.Code)
	}
	if c := errCode(t, w); c != "NO_ACTIVE_CHALLENGE" {
		t.Errorf("code = %q, want NO_ACTIVE_CHALLENGE", c)
	}
}

func TestRequestOtpRequiresToken(t *testing.T) {
	env := newTestEnv()

	w := env.do(t, "POST", "/auth/request-otp", "", map[string]string{"purpose": "email"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRequestOtpUnknownPurpose(t *testing.T) {
	env := newTestEnv()
	token, _ := env.register(t)

	w := env.do(t, "POST", "/auth/request-otp", token, map[string]string{"purpose": "fax"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
