package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/testutil"
	"golang.org/x/crypto/bcrypt"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []domain.MailMessage
	err      error
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	var mailMessage domain.MailMessage
	if err := json.Unmarshal(msg.Body, &mailMessage); err != nil {
		return err
	}
	p.messages = append(p.messages, mailMessage)
	return nil
}

type testEnv struct {
	h         *Handler
	repo      *repository.Repository
	db        *sql.DB
	publisher *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testutil.NewConfig()
	repo, db := testutil.NewRepository(t, cfg)
	publisher := &fakePublisher{}

	h, err := NewHandler(cfg, repo, publisher, nil)
	require.NoError(t, err)
	h.RegisterRoutes()

	return &testEnv{h: h, repo: repo, db: db, publisher: publisher}
}

// createAccount 直接写入数据库并返回对应的访问令牌
func (env *testEnv) createAccount(t *testing.T, username string, role domain.Role, active bool) (*domain.Account, string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	account := &domain.Account{
		Username:     username,
		PasswordHash: string(hash),
		Email:        username + "@example.com",
		Role:         role,
		IsActive:     active,
	}
	require.NoError(t, env.repo.CreateAccount(context.Background(), account))

	token, err := env.h.signToken(account, env.h.config.JWT.AccessSecret, time.Now().Add(time.Hour), "")
	require.NoError(t, err)

	return account, token
}

func (env *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.h.Mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type createResponse struct {
	Message  string           `json:"message"`
	Planning *domain.Planning `json:"planning"`
	Jours    []*domain.Jour   `json:"jours"`
}

const morningShiftBody = `{"intitule":"Morning Shift","sessions":[{"h_entree":"08:00","h_sortie":"12:00"}],"employees":["E1","E2"]}`

func TestCreatePlanning(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createAccount(t, "admin", domain.RoleAdmin, true)
	testutil.SeedEmployees(t, env.repo, "E1", "E2")

	rec := env.do(t, http.MethodPost, "/plannings", morningShiftBody, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[createResponse](t, rec)
	assert.Equal(t, "Planning, jours, and employees created successfully!", res.Message)
	assert.Equal(t, "Morning Shift", res.Planning.Intitule)
	assert.Equal(t, []string{"E1", "E2"}, res.Planning.EmployeeIDs)
	require.Len(t, res.Jours, 1)
	assert.Equal(t, res.Planning.ID, res.Jours[0].IDPlanning)

	require.Len(t, env.publisher.messages, 2)
	for _, message := range env.publisher.messages {
		assert.Equal(t, domain.MailTypePlanningAssigned, message.Type)
	}

	employee, err := env.repo.GetEmployeeByID(context.Background(), "E1")
	require.NoError(t, err)
	require.NotNil(t, employee.IDPlanning)
	assert.Equal(t, res.Planning.ID, *employee.IDPlanning)
}

func TestCreatePlanningSucceedsWhenNotificationFails(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createAccount(t, "admin", domain.RoleAdmin, true)
	testutil.SeedEmployees(t, env.repo, "E1", "E2")
	env.publisher.err = errors.New("broker down")

	rec := env.do(t, http.MethodPost, "/plannings", morningShiftBody, token)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreatePlanningValidationError(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createAccount(t, "admin", domain.RoleAdmin, true)

	for _, body := range []string{
		`{"intitule":"Morning Shift","employees":[]}`,
		`{"sessions":[],"employees":[]}`,
		`{"intitule":"Morning Shift","sessions":[{"h_entree":"8h","h_sortie":"12:00"}],"employees":[]}`,
		`not json`,
	} {
		rec := env.do(t, http.MethodPost, "/plannings", body, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.NotEmpty(t, decode[MessageResponse](t, rec).Message)
	}

	cnt, err := env.repo.CountPlannings(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cnt)
}

func TestCreatePlanningTransactionFailure(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createAccount(t, "admin", domain.RoleAdmin, true)
	testutil.SeedEmployees(t, env.repo, "E1", "E2")
	testutil.FailOn(t, env.db, "jours", "INSERT")

	rec := env.do(t, http.MethodPost, "/plannings", morningShiftBody, token)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[MessageResponse](t, rec).Message, "transaction aborted")
	assert.Empty(t, env.publisher.messages)

	cnt, err := env.repo.CountPlannings(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cnt)
}

func TestPlanningRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	_, memberToken := env.createAccount(t, "member", domain.RoleMember, true)

	rec := env.do(t, http.MethodGet, "/plannings", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/plannings", "", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/plannings", morningShiftBody, memberToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/plannings", "", memberToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAllPlanningsPagination(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createAccount(t, "admin", domain.RoleAdmin, true)

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/plannings", `{"intitule":"Shift","sessions":[],"employees":[]}`, token)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/plannings", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Page"))
	assert.Equal(t, "10", rec.Header().Get("X-Limit"))
	assert.Len(t, decode[[]domain.PlanningDetail](t, rec), 3)

	rec = env.do(t, http.MethodGet, "/plannings?page=2&limit=2", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.PlanningDetail](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/plannings?limit=5000", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-Limit"))

	rec = env.do(t, http.MethodGet, "/plannings?page=9223372036854775807", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]domain.PlanningDetail](t, rec))

	rec = env.do(t, http.MethodGet, "/plannings?page=abc", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUpdateDeletePlanning(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createAccount(t, "admin", domain.RoleAdmin, true)
	testutil.SeedEmployees(t, env.repo, "E1", "E2")

	rec := env.do(t, http.MethodPost, "/plannings", morningShiftBody, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[createResponse](t, rec).Planning.ID

	rec = env.do(t, http.MethodGet, "/plannings/"+id, "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[domain.PlanningDetail](t, rec)
	assert.Len(t, detail.Employees, 2)
	assert.Len(t, detail.Jours, 1)

	rec = env.do(t, http.MethodPatch, "/plannings/"+id, `{"isDeleted":true}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/plannings/"+id, `{"intitule":"Evening Shift","employees":["E2"]}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail = decode[domain.PlanningDetail](t, rec)
	assert.Equal(t, "Evening Shift", detail.Intitule)
	require.Len(t, detail.Employees, 1)
	assert.Equal(t, "E2", detail.Employees[0].ID)

	rec = env.do(t, http.MethodPut, "/plannings/missing", `{"intitule":"X"}`, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/plannings/"+id, "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decode[struct {
		Message  string          `json:"message"`
		Planning domain.Planning `json:"planning"`
	}](t, rec)
	assert.Equal(t, "Planning deleted", deleted.Message)
	assert.True(t, deleted.Planning.IsDeleted)

	rec = env.do(t, http.MethodGet, "/plannings/"+id, "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Planning not found", decode[MessageResponse](t, rec).Message)

	rec = env.do(t, http.MethodDelete, "/plannings/"+id, "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmployeeRoutes(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createAccount(t, "admin", domain.RoleAdmin, true)

	rec := env.do(t, http.MethodPost, "/employees", `{"id":"E1","fullName":"Zhang San","email":"zhangsan@example.com"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/employees", `{"email":"someone@example.com"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/employees/E1", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Zhang San", decode[domain.Employee](t, rec).FullName)

	rec = env.do(t, http.MethodGet, "/employees/E404", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Employee not found", decode[MessageResponse](t, rec).Message)

	rec = env.do(t, http.MethodGet, "/employees", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Employee](t, rec), 1)
}

func TestSignupAndActivation(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.createAccount(t, "admin", domain.RoleAdmin, true)

	body := `{"username":"alice","password":"password123","email":"alice@example.com"}`
	rec := env.do(t, http.MethodPost, "/auth/signup", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/auth/signup", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "'alice' already registered!", decode[MessageResponse](t, rec).Message)

	rec = env.do(t, http.MethodPost, "/auth/login", `{"username":"alice","password":"password123"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Account is not activated, please contact the admin", decode[MessageResponse](t, rec).Message)

	alice, err := env.repo.GetAccountByUsername(context.Background(), "alice")
	require.NoError(t, err)

	rec = env.do(t, http.MethodPatch, "/accounts/"+alice.ID+"/activate", "", adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[domain.Account](t, rec).IsActive)

	rec = env.do(t, http.MethodPatch, "/accounts/missing/activate", "", adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "bob", domain.RoleMember, true)

	for _, body := range []string{
		`{"username":"bob","password":"wrong-password"}`,
		`{"username":"nobody","password":"password123"}`,
	} {
		rec := env.do(t, http.MethodPost, "/auth/login", body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Incorrect username or password!", decode[MessageResponse](t, rec).Message)
	}
}

func TestRequireResetPasswordForUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/reset-password/require", `{"username":"nobody"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.publisher.messages)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	env := newTestEnv(t)
	account, token := env.createAccount(t, "carol", domain.RoleMember, true)

	claims, err := env.h.parseToken(token, env.h.config.JWT.AccessSecret)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.Subject)
	assert.Equal(t, string(domain.RoleMember), claims.Role)

	_, err = env.h.parseToken(token, env.h.config.JWT.RefreshSecret)
	assert.Error(t, err)
}
