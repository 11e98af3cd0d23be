package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestWithTx_CommitsAndRollsBack(t *testing.T) {
	conn := newTestDB(t)
	client := NewFromConn(conn)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, conn.Model(&testModel{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	require.NoError(t, conn.Model(&testModel{}).Count(&count).Error)
	require.EqualValues(t, 1, count, "rollback should leave the committed row only")
}

func TestPing(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
}

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, IsUniqueViolation(nil, ""))
	require.True(t, IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "transactions_order_reference_key"`), ""))
	require.True(t, IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "transactions_order_reference_key"`), "transactions_order_reference_key"))
	require.False(t, IsUniqueViolation(errors.New("connection refused"), ""))
	require.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: orders.order_number"), ""))
}
