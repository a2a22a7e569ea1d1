package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aman-churiwal/leetquery/internal/auth"
	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/aman-churiwal/leetquery/internal/query"
	"github.com/aman-churiwal/leetquery/internal/repository"
	"github.com/aman-churiwal/leetquery/internal/validation"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type memUsers struct {
	mu    sync.Mutex
	users []*models.User
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.users = append(m.users, u)
	return nil
}

func (m *memUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Username == username })
}

func (m *memUsers) FindByLogin(_ context.Context, login string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Username == login || u.Email == login })
}

func (m *memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID.String() == id })
}

func (m *memUsers) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	u, _ := m.FindByID(context.Background(), id)
	if u != nil {
		u.LastLogin = &at
	}
	return nil
}

type memRoles map[string]string

func (m memRoles) FindRole(_ context.Context, subject string) (string, error) {
	return m[subject], nil
}

func newAuthService(t *testing.T) (*AuthService, *memUsers, memRoles, *auth.TokenManager) {
	t.Helper()
	users := &memUsers{}
	roles := memRoles{}
	tokens := auth.NewTokenManager(auth.TokenConfig{Secret: "service-test-secret-service-test!"})
	svc := NewAuthService(users, roles, tokens)
	svc.cost = bcrypt.MinCost
	return svc, users, roles, tokens
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Username:        "ann_b",
		Email:           "Ann@Example.edu",
		Password:        "Secr3t!pw",
		PasswordConfirm: "Secr3t!pw",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, users, roles, tokens := newAuthService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.TokenType != "Bearer" || res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("unexpected auth result %+v", res)
	}
	if res.User.Role != "USER" || res.User.Email != "ann@example.edu" {
		t.Fatalf("unexpected user info %+v", res.User)
	}
	if res.ExpiresIn != int64((24 * time.Hour).Seconds()) {
		t.Fatalf("unexpected expires_in %d", res.ExpiresIn)
	}
	if users.users[0].PasswordHash == "Secr3t!pw" {
		t.Fatal("password stored in clear")
	}

	if _, err := svc.Register(ctx, validRegistration()); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	if _, err := svc.Login(ctx, "ann_b", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "Secr3t!pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	roles[res.User.ID] = "ADMIN"
	login, err := svc.Login(ctx, "ann@example.edu", "Secr3t!pw")
	if err != nil {
		t.Fatalf("Login by email: %v", err)
	}
	if login.User.Role != "ADMIN" {
		t.Fatalf("expected ADMIN role after grant, got %q", login.User.Role)
	}
	if users.users[0].LastLogin == nil {
		t.Fatal("last login not recorded")
	}

	claims, state, err := tokens.Verify(login.AccessToken, auth.KindAccess)
	if state != auth.StateValid || claims.Subject != res.User.ID {
		t.Fatalf("access token invalid: %s %v", state, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _, _ := newAuthService(t)

	in := validRegistration()
	in.PasswordConfirm = "different1!A"
	_, err := svc.Register(context.Background(), in)

	var verr *validation.Error
	if !errors.As(err, &verr) || verr.Field != "passwordConfirm" {
		t.Fatalf("expected passwordConfirm validation error, got %v", err)
	}

	in = validRegistration()
	in.FirstName = "<script>alert(1)</script>"
	if _, err := svc.Register(context.Background(), in); !errors.As(err, &verr) || verr.Field != "firstName" {
		t.Fatalf("expected firstName validation error, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	svc, _, _, _ := newAuthService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	refreshed, err := svc.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken != res.RefreshToken {
		t.Fatalf("unexpected refresh result %+v", refreshed)
	}

	if _, err := svc.Refresh(ctx, res.AccessToken); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("access token accepted as refresh token: %v", err)
	}
}

type memCatalog struct {
	stages   []models.Stage
	problems []models.Problem
	created  *models.Problem
}

func (m *memCatalog) ListStages(context.Context) ([]models.Stage, error) { return m.stages, nil }
func (m *memCatalog) ListProblems(context.Context) ([]models.Problem, error) {
	return m.problems, nil
}
func (m *memCatalog) ListProblemsByStage(_ context.Context, id int) ([]models.Problem, error) {
	var out []models.Problem
	for _, p := range m.problems {
		if p.StageID == id {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m *memCatalog) ListChallenges(context.Context, int) ([]models.Challenge, error) {
	return nil, nil
}
func (m *memCatalog) FindSchema(_ context.Context, levelID int) (*models.TutorialSchema, error) {
	if levelID == 1 {
		return &models.TutorialSchema{LevelID: 1, SchemaInfo: "students(id, name)"}, nil
	}
	if levelID == 13 {
		return nil, errors.New("relation tutorial_schema does not exist")
	}
	return nil, nil
}
func (m *memCatalog) CreateProblem(_ context.Context, stageOrder int, p *models.Problem) error {
	for _, st := range m.stages {
		if st.OrderNo == stageOrder {
			p.StageID = st.ID
			p.ID = len(m.problems) + 1
			m.created = p
			return nil
		}
	}
	return repository.ErrStageNotFound
}
func (m *memCatalog) DeleteProblem(_ context.Context, id int) (bool, error) {
	return id == 1, nil
}

func TestAddProblem(t *testing.T) {
	store := &memCatalog{stages: []models.Stage{{ID: 7, Title: "Joins", OrderNo: 3}}}
	svc := NewCatalogService(store)
	ctx := context.Background()

	p, err := svc.AddProblem(ctx, ProblemInput{
		StageOrder:    3,
		Title:         "Inner joins",
		Description:   `Find "Tom's" rows where a < b`,
		ExpectedQuery: "SELECT * FROM a JOIN b ON a.id = b.id",
		Difficulty:    "medium",
	})
	if err != nil {
		t.Fatalf("AddProblem: %v", err)
	}
	if p.StageID != 7 || p.Difficulty != "MEDIUM" {
		t.Fatalf("unexpected problem %+v", p)
	}
	if p.Description != "Find &quot;Tom&#x27;s&quot; rows where a &lt; b" {
		t.Fatalf("description not sanitized: %q", p.Description)
	}
	if p.ExpectedQuery != "SELECT * FROM a JOIN b ON a.id = b.id" {
		t.Fatalf("expected query must be stored verbatim, got %q", p.ExpectedQuery)
	}

	cases := []struct {
		in    ProblemInput
		field string
	}{
		{ProblemInput{StageOrder: 3, Title: "Robert'); DROP TABLE students;--", Description: "d", ExpectedQuery: "q"}, "title"},
		{ProblemInput{StageOrder: 3, Title: "ok", Description: "<script>x</script>", ExpectedQuery: "q"}, "description"},
		{ProblemInput{StageOrder: 3, Title: "ok", Description: "d", ExpectedQuery: "SELECT '<iframe src=x>'"}, "expectedQuery"},
		{ProblemInput{StageOrder: 3, Title: "ok", Description: "", ExpectedQuery: "q"}, "description"},
		{ProblemInput{StageOrder: 3, Title: strings.Repeat("a", 256), Description: "d", ExpectedQuery: "q"}, "title"},
		{ProblemInput{StageOrder: 3, Title: "ok", Description: "d", ExpectedQuery: "q", Difficulty: "brutal"}, "difficulty"},
		{ProblemInput{StageOrder: 0, Title: "ok", Description: "d", ExpectedQuery: "q"}, "stageOrder"},
		{ProblemInput{StageOrder: 9, Title: "ok", Description: "d", ExpectedQuery: "q"}, "stageOrder"},
	}
	for _, tc := range cases {
		_, err := svc.AddProblem(ctx, tc.in)
		var verr *validation.Error
		if !errors.As(err, &verr) || verr.Field != tc.field {
			t.Errorf("AddProblem(%+v) = %v, want error on %s", tc.in, err, tc.field)
		}
	}
}

func TestCatalogLookups(t *testing.T) {
	store := &memCatalog{
		stages: []models.Stage{{ID: 1, Title: "Basics", OrderNo: 1}, {ID: 2, Title: "Joins", OrderNo: 2}},
		problems: []models.Problem{
			{ID: 1, StageID: 1, Title: "Select all"},
			{ID: 2, StageID: 1, Title: "Filter"},
		},
	}
	svc := NewCatalogService(store)
	ctx := context.Background()

	grouped, err := svc.StagesWithProblems(ctx)
	if err != nil {
		t.Fatalf("StagesWithProblems: %v", err)
	}
	if len(grouped) != 2 || len(grouped[0].Problems) != 2 || grouped[1].Problems == nil || len(grouped[1].Problems) != 0 {
		t.Fatalf("unexpected grouping %+v", grouped)
	}

	if got := svc.SchemaInfo(ctx, 1); got != "students(id, name)" {
		t.Fatalf("unexpected schema %q", got)
	}
	if got := svc.SchemaInfo(ctx, 2); got != "No schema available" {
		t.Fatalf("unexpected missing schema text %q", got)
	}
	if got := svc.SchemaInfo(ctx, 13); !strings.Contains(got, "unavailable for level 13") {
		t.Fatalf("unexpected failed schema text %q", got)
	}

	if err := svc.DeleteProblem(ctx, 1); err != nil {
		t.Fatalf("DeleteProblem: %v", err)
	}
	if err := svc.DeleteProblem(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type fakeExecutor struct {
	result *query.Result
	err    error
	calls  int
}

func (f *fakeExecutor) Execute(context.Context, string) (*query.Result, error) {
	f.calls++
	return f.result, f.err
}

type memRecorder struct {
	entries []models.QueryLog
}

func (m *memRecorder) Record(e models.QueryLog) { m.entries = append(m.entries, e) }

func TestQueryServiceShapes(t *testing.T) {
	rec := &memRecorder{}
	exec := &fakeExecutor{}
	svc := NewQueryService(exec, rec, QueryServiceOptions{MaxLength: 40, StoredQueryLength: 10})
	ctx := context.Background()
	caller := Caller{ClientKey: "10.0.0.1", Subject: "user-1"}

	var verr *validation.Error
	if _, err := svc.Execute(ctx, caller, "   "); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for blank query, got %v", err)
	}
	if _, err := svc.Execute(ctx, caller, strings.Repeat("x", 41)); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for long query, got %v", err)
	}
	if exec.calls != 0 || len(rec.entries) != 0 {
		t.Fatal("invalid requests must not reach the executor")
	}

	exec.err = &query.QueryError{Message: "ERROR: syntax error", SQLState: "42601"}
	res, err := svc.Execute(ctx, caller, "SELEC 1 FROM students")
	if err != nil {
		t.Fatalf("store rejection must be in-band, got %v", err)
	}
	if res.Success || res.QueryType != "ERROR" || res.Message != "ERROR: syntax error" {
		t.Fatalf("unexpected error result %+v", res)
	}

	exec.err = nil
	exec.result = &query.Result{Success: true, QueryType: "SELECT", RowCount: 5}
	if _, err := svc.Execute(ctx, caller, "SELECT * FROM students LIMIT 5;"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	exec.result = nil
	exec.err = query.ErrStoreUnavailable
	if _, err := svc.Execute(ctx, caller, "SELECT 1"); !errors.Is(err, query.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}

	if len(rec.entries) != 3 {
		t.Fatalf("expected 3 audit records, got %d", len(rec.entries))
	}
	if e := rec.entries[0]; e.Success || e.SQLState != "42601" || e.QueryType != "ERROR" {
		t.Fatalf("unexpected rejected record %+v", e)
	}
	if e := rec.entries[1]; !e.Success || e.RowCount != 5 || e.Query != "SELECT * F" || e.Subject != "user-1" {
		t.Fatalf("unexpected success record %+v", e)
	}
	if e := rec.entries[2]; e.QueryType != "UNAVAILABLE" {
		t.Fatalf("unexpected unavailable record %+v", e)
	}
}

type memSink struct {
	mu      sync.Mutex
	batches [][]models.QueryLog
}

func (m *memSink) CreateBatch(_ context.Context, logs []models.QueryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]models.QueryLog(nil), logs...)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *memSink) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestQueryLogWriterFlushesOnStop(t *testing.T) {
	sink := &memSink{}
	w := NewQueryLogWriter(sink, QueryLogWriterOptions{BufferSize: 10, BatchSize: 4, FlushInterval: time.Hour})
	w.Start()

	for i := 0; i < 6; i++ {
		w.Record(models.QueryLog{QueryType: "SELECT"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := sink.total(); got != 6 {
		t.Fatalf("expected 6 flushed records, got %d", got)
	}
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestQueryLogWriterDropsWhenFull(t *testing.T) {
	sink := &memSink{}
	w := NewQueryLogWriter(sink, QueryLogWriterOptions{BufferSize: 2, BatchSize: 10, FlushInterval: time.Hour})

	// Not started: the buffer fills and further records are dropped.
	for i := 0; i < 5; i++ {
		w.Record(models.QueryLog{})
	}
	if len(w.ch) != 2 {
		t.Fatalf("expected buffer of 2, got %d", len(w.ch))
	}
}

type fakeLogStore struct {
	QueryLogStore
	total, ok     int64
	deletedBefore time.Time
}

func (f *fakeLogStore) CountByTimeRange(context.Context, time.Time, time.Time) (int64, error) {
	return f.total, nil
}
func (f *fakeLogStore) CountSuccessful(context.Context, time.Time, time.Time) (int64, error) {
	return f.ok, nil
}
func (f *fakeLogStore) GetAverageDuration(context.Context, time.Time, time.Time) (float64, error) {
	return 12.5, nil
}
func (f *fakeLogStore) GetPercentile(_ context.Context, _, _ time.Time, p float64) (int, error) {
	return int(p * 100), nil
}
func (f *fakeLogStore) CountByQueryType(context.Context, time.Time, time.Time) (map[string]int64, error) {
	return map[string]int64{"SELECT": 3, "ERROR": 1}, nil
}
func (f *fakeLogStore) GetTopClients(context.Context, time.Time, time.Time, int) ([]repository.ClientCount, error) {
	return nil, nil
}
func (f *fakeLogStore) DeleteOldLogs(_ context.Context, before time.Time) (int64, error) {
	f.deletedBefore = before
	return 2, nil
}

func TestQueryAnalyticsSummary(t *testing.T) {
	store := &fakeLogStore{total: 4, ok: 3}
	svc := NewQueryAnalyticsService(store)
	now := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	summary, err := svc.GetSummary(ctx, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if summary.SuccessRate != 75 || summary.ErrorRate != 25 || summary.P95DurationMs != 95 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.CountsByType["SELECT"] != 3 || summary.TopClients == nil {
		t.Fatalf("unexpected breakdown %+v", summary)
	}

	empty, err := NewQueryAnalyticsService(&fakeLogStore{}).GetSummary(ctx, now, now)
	if err != nil || empty.TotalQueries != 0 {
		t.Fatalf("unexpected empty summary %+v %v", empty, err)
	}

	if n, _ := svc.CleanupOldLogs(ctx, 30); n != 2 || !store.deletedBefore.Equal(now.AddDate(0, 0, -30)) {
		t.Fatalf("unexpected cleanup cutoff %v", store.deletedBefore)
	}
}
