package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/dkemp/subcycle-backend/pkg/db"
	"github.com/dkemp/subcycle-backend/pkg/db/models"
	"github.com/dkemp/subcycle-backend/pkg/enums"
)

func newTestRepo(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.PaymentMethod{},
		&models.BillingScheduleEntry{},
		&models.PaymentTransaction{},
	))
	return NewRepository(conn), conn
}

func seedEntry(t *testing.T, repo Repository, merchantUID, businessID string, status enums.PaymentStatus, schedule time.Time) *models.BillingScheduleEntry {
	t.Helper()
	entry := &models.BillingScheduleEntry{
		MerchantUID: merchantUID,
		BusinessID:  businessID,
		Schedule:    schedule,
		Amount:      decimal.NewFromInt(10000),
		VAT:         decimal.NewFromInt(1000),
		BillingPlan: enums.BillingPlan4Week,
		Status:      status,
	}
	require.NoError(t, repo.CreateScheduleEntry(context.Background(), entry))
	return entry
}

func TestFindDefaultPaymentMethod(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreatePaymentMethod(ctx, &models.PaymentMethod{
		BusinessID: "B1", CustomerUID: "cust_1", IsDefault: false,
	}))
	require.NoError(t, repo.CreatePaymentMethod(ctx, &models.PaymentMethod{
		BusinessID: "B1", CustomerUID: "cust_2", IsDefault: true,
	}))

	method, err := repo.FindDefaultPaymentMethod(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, method)
	assert.Equal(t, "cust_2", method.CustomerUID)

	missing, err := repo.FindDefaultPaymentMethod(ctx, "B2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClearAndMarkDefaultPaymentMethod(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreatePaymentMethod(ctx, &models.PaymentMethod{
		BusinessID: "B1", CustomerUID: "cust_1", IsDefault: true,
	}))
	require.NoError(t, repo.CreatePaymentMethod(ctx, &models.PaymentMethod{
		BusinessID: "B1", CustomerUID: "cust_2",
	}))

	require.NoError(t, repo.ClearDefaultPaymentMethod(ctx, "B1"))
	method, err := repo.FindDefaultPaymentMethod(ctx, "B1")
	require.NoError(t, err)
	assert.Nil(t, method)

	methods, err := repo.ListPaymentMethods(ctx, "B1")
	require.NoError(t, err)
	var target *models.PaymentMethod
	for i := range methods {
		if methods[i].CustomerUID == "cust_2" {
			target = &methods[i]
		}
	}
	require.NotNil(t, target)
	require.NoError(t, repo.MarkPaymentMethodDefault(ctx, target.ID))

	method, err = repo.FindDefaultPaymentMethod(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, method)
	assert.Equal(t, "cust_2", method.CustomerUID)
}

func TestListDueEntriesOnlyPending(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	today := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedEntry(t, repo, "B1_ch0", "B1", enums.PaymentStatusPending, today.AddDate(0, 0, -1))
	seedEntry(t, repo, "B2_ch0", "B2", enums.PaymentStatusPending, today)
	seedEntry(t, repo, "B3_ch0", "B3", enums.PaymentStatusFailed, today.AddDate(0, 0, -2))
	seedEntry(t, repo, "B4_ch0", "B4", enums.PaymentStatusPending, today.AddDate(0, 0, 7))
	seedEntry(t, repo, "B5_ch0", "B5", enums.PaymentStatusPaid, today.AddDate(0, 0, -3))

	due, err := repo.ListDueEntries(ctx, today, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	// Oldest schedule first.
	assert.Equal(t, "B1_ch0", due[0].MerchantUID)
	assert.Equal(t, "B2_ch0", due[1].MerchantUID)
}

func TestFindActiveEntry(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seedEntry(t, repo, "B1_ch0", "B1", enums.PaymentStatusPaid, base)
	seedEntry(t, repo, "B1_ch1", "B1", enums.PaymentStatusFailed, base.AddDate(0, 0, 28))

	active, err := repo.FindActiveEntry(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "B1_ch1", active.MerchantUID)

	none, err := repo.FindActiveEntry(ctx, "B9")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCreateTransactionRejectsDuplicateGatewayTxID(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	tx := &models.PaymentTransaction{
		BusinessID:  "B1",
		GatewayTxID: "imp_001",
		MerchantUID: "B1_ch0",
		IntentType:  enums.PaymentIntentInitial,
		Name:        "initial charge",
		Currency:    "KRW",
		Amount:      decimal.NewFromInt(10000),
		VAT:         decimal.NewFromInt(1000),
		CustomerUID: "cust_1",
		Status:      enums.PaymentStatusPaid,
		ScheduledAt: time.Now(),
	}
	require.NoError(t, repo.CreateTransaction(ctx, tx))

	dup := *tx
	dup.ID = uuid.Nil
	err := repo.CreateTransaction(ctx, &dup)
	require.Error(t, err)
	assert.True(t, dbpkg.IsUniqueViolation(err, "gateway_tx_id"))
}

func TestListTransactionsPagination(t *testing.T) {
	repo, conn := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		tx := &models.PaymentTransaction{
			BusinessID:  "B1",
			GatewayTxID: "imp_00" + string(rune('1'+i)),
			MerchantUID: "B1_ch0",
			IntentType:  enums.PaymentIntentScheduled,
			Name:        "cycle charge",
			Currency:    "KRW",
			Amount:      decimal.NewFromInt(10000),
			VAT:         decimal.NewFromInt(1000),
			CustomerUID: "cust_1",
			Status:      enums.PaymentStatusPaid,
			ScheduledAt: base,
		}
		require.NoError(t, repo.CreateTransaction(ctx, tx))
		// Distinct created_at values so the keyset ordering is deterministic.
		require.NoError(t, conn.Model(tx).Update("created_at", base.Add(time.Duration(i)*time.Hour)).Error)
	}

	first, cursor, err := repo.ListTransactions(ctx, ListTransactionsQuery{BusinessID: "B1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotNil(t, cursor)
	assert.Equal(t, "imp_005", first[0].GatewayTxID)

	second, cursor, err := repo.ListTransactions(ctx, ListTransactionsQuery{BusinessID: "B1", Limit: 3, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Nil(t, cursor)
	assert.NotEqual(t, first[len(first)-1].GatewayTxID, second[0].GatewayTxID)
}
