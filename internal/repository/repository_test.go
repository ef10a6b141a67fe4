package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/testutil"
)

func TestInsertAndGetPlanning(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()

	planning := &domain.Planning{Intitule: "Morning Shift", EmployeeIDs: []string{"E2", "E1"}}
	require.NoError(t, repo.InsertPlanning(ctx, repo.DB(), planning))
	assert.NotEmpty(t, planning.ID)
	assert.EqualValues(t, 1, planning.Version)

	got, err := repo.GetPlanningByID(ctx, repo.DB(), planning.ID)
	require.NoError(t, err)
	assert.Equal(t, "Morning Shift", got.Intitule)
	assert.Equal(t, []string{"E2", "E1"}, got.EmployeeIDs)
	assert.False(t, got.IsDeleted)
	assert.True(t, planning.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.GetPlanningByID(ctx, repo.DB(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWithTransactionRollsBack(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()

	errBoom := errors.New("boom")
	var planningID string

	err := repo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		planning := &domain.Planning{Intitule: "Night Shift", EmployeeIDs: []string{}}
		if err := repo.InsertPlanning(ctx, tx, planning); err != nil {
			return err
		}
		planningID = planning.ID
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	exists, err := repo.PlanningExists(ctx, planningID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithTransactionCommits(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()

	var planningID string
	err := repo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		planning := &domain.Planning{Intitule: "Night Shift", EmployeeIDs: []string{}}
		if err := repo.InsertPlanning(ctx, tx, planning); err != nil {
			return err
		}
		planningID = planning.ID
		return repo.InsertJours(ctx, tx, []*domain.Jour{{HEntree: "22:00", HSortie: "06:00", IDPlanning: planning.ID}})
	})
	require.NoError(t, err)

	exists, err := repo.PlanningExists(ctx, planningID)
	require.NoError(t, err)
	assert.True(t, exists)

	jours, err := repo.GetJoursByPlanningID(ctx, repo.DB(), planningID)
	require.NoError(t, err)
	require.Len(t, jours, 1)
	assert.Equal(t, "22:00", jours[0].HEntree)
	assert.Equal(t, planningID, jours[0].IDPlanning)
}

func TestJoursKeepSessionOrder(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()

	planning := &domain.Planning{Intitule: "Split Shift", EmployeeIDs: []string{}}
	require.NoError(t, repo.InsertPlanning(ctx, repo.DB(), planning))

	jours := []*domain.Jour{
		{HEntree: "14:00", HSortie: "18:00", IDPlanning: planning.ID},
		{HEntree: "08:00", HSortie: "12:00", IDPlanning: planning.ID},
	}
	require.NoError(t, repo.InsertJours(ctx, repo.DB(), jours))

	got, err := repo.GetJoursByPlanningID(ctx, repo.DB(), planning.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "14:00", got[0].HEntree)
	assert.Equal(t, "08:00", got[1].HEntree)

	cnt, err := repo.CountJours(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)
}

func TestAssignEmployeesSkipsUnknownIDs(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()
	testutil.SeedEmployees(t, repo, "E1", "E2")

	updated, err := repo.AssignEmployeesToPlanning(ctx, repo.DB(), "P1", []string{"E1", "E9"})
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, updated)

	e1, err := repo.GetEmployeeByID(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, e1.IDPlanning)
	assert.Equal(t, "P1", *e1.IDPlanning)

	e2, err := repo.GetEmployeeByID(ctx, "E2")
	require.NoError(t, err)
	assert.Nil(t, e2.IDPlanning)

	updated, err = repo.AssignEmployeesToPlanning(ctx, repo.DB(), "P1", nil)
	require.NoError(t, err)
	assert.Empty(t, updated)
}

func TestAssignEmployeesMovesToMostRecentPlanning(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()
	testutil.SeedEmployees(t, repo, "E1")

	_, err := repo.AssignEmployeesToPlanning(ctx, repo.DB(), "P1", []string{"E1"})
	require.NoError(t, err)
	_, err = repo.AssignEmployeesToPlanning(ctx, repo.DB(), "P2", []string{"E1"})
	require.NoError(t, err)

	e1, err := repo.GetEmployeeByID(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, e1.IDPlanning)
	assert.Equal(t, "P2", *e1.IDPlanning)
}

func TestUnassignEmployeesKeepsOthers(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()
	testutil.SeedEmployees(t, repo, "E1", "E2", "E3")

	_, err := repo.AssignEmployeesToPlanning(ctx, repo.DB(), "P1", []string{"E1", "E2"})
	require.NoError(t, err)
	_, err = repo.AssignEmployeesToPlanning(ctx, repo.DB(), "P2", []string{"E3"})
	require.NoError(t, err)

	require.NoError(t, repo.UnassignEmployeesFromPlanning(ctx, repo.DB(), "P1", []string{"E2"}))

	e1, err := repo.GetEmployeeByID(ctx, "E1")
	require.NoError(t, err)
	assert.Nil(t, e1.IDPlanning)

	e2, err := repo.GetEmployeeByID(ctx, "E2")
	require.NoError(t, err)
	require.NotNil(t, e2.IDPlanning)
	assert.Equal(t, "P1", *e2.IDPlanning)

	e3, err := repo.GetEmployeeByID(ctx, "E3")
	require.NoError(t, err)
	require.NotNil(t, e3.IDPlanning)
	assert.Equal(t, "P2", *e3.IDPlanning)
}

func TestGetEmployeesByIDsKeepsRequestOrder(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()
	testutil.SeedEmployees(t, repo, "E1", "E2", "E3")

	employees, err := repo.GetEmployeesByIDs(ctx, repo.DB(), []string{"E3", "missing", "E1"})
	require.NoError(t, err)
	require.Len(t, employees, 2)
	assert.Equal(t, "E3", employees[0].ID)
	assert.Equal(t, "E1", employees[1].ID)
}

func TestSoftDeletePlanning(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()

	first := &domain.Planning{Intitule: "First", EmployeeIDs: []string{}}
	second := &domain.Planning{Intitule: "Second", EmployeeIDs: []string{}}
	require.NoError(t, repo.InsertPlanning(ctx, repo.DB(), first))
	require.NoError(t, repo.InsertPlanning(ctx, repo.DB(), second))

	deleted, err := repo.SoftDeletePlanning(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.EqualValues(t, 2, deleted.Version)

	_, err = repo.SoftDeletePlanning(ctx, first.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	plannings, err := repo.GetPlannings(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, plannings, 1)
	assert.Equal(t, second.ID, plannings[0].ID)

	exists, err := repo.PlanningExists(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	cnt, err := repo.CountPlannings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)
}

func TestGetPlanningsPagination(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()

	ids := make([]string, 0, 5)
	for _, intitule := range []string{"A", "B", "C", "D", "E"} {
		planning := &domain.Planning{Intitule: intitule, EmployeeIDs: []string{}}
		require.NoError(t, repo.InsertPlanning(ctx, repo.DB(), planning))
		ids = append(ids, planning.ID)
	}

	page, err := repo.GetPlannings(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	page, err = repo.GetPlannings(ctx, 4, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[4], page[0].ID)
}

func TestUpdatePlanningVersionCheck(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()

	planning := &domain.Planning{Intitule: "Before", EmployeeIDs: []string{}}
	require.NoError(t, repo.InsertPlanning(ctx, repo.DB(), planning))

	stale := *planning

	planning.Intitule = "After"
	require.NoError(t, repo.UpdatePlanning(ctx, repo.DB(), planning))
	assert.EqualValues(t, 2, planning.Version)

	stale.Intitule = "Stale"
	assert.ErrorIs(t, repo.UpdatePlanning(ctx, repo.DB(), &stale), sql.ErrNoRows)

	got, err := repo.GetPlanningByID(ctx, repo.DB(), planning.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", got.Intitule)
}

func TestAccounts(t *testing.T) {
	repo, _ := testutil.NewRepository(t, testutil.NewConfig())
	ctx := context.Background()

	account := &domain.Account{
		Username:     "alice",
		PasswordHash: "hash",
		Email:        "alice@example.com",
		Role:         domain.RoleMember,
	}
	require.NoError(t, repo.CreateAccount(ctx, account))

	exists, err := repo.CheckUsernameIfExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.CheckUsernameIfExists(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, exists)

	// 用户名唯一
	assert.Error(t, repo.CreateAccount(ctx, &domain.Account{Username: "alice", PasswordHash: "x", Email: "a@example.com", Role: domain.RoleMember}))

	got, err := repo.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	assert.False(t, got.IsActive)

	got.IsActive = true
	require.NoError(t, repo.UpdateAccount(ctx, got))

	byID, err := repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, byID.IsActive)
	assert.Equal(t, domain.RoleMember, byID.Role)

	// 旧版本号的更新会失败
	assert.ErrorIs(t, repo.UpdateAccount(ctx, account), sql.ErrNoRows)
}
