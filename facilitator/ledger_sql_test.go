package facilitator

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSQLLedgerReserveWins(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO settlements").
		WithArgs("0xkey", int64(1700000600)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ledger := NewSQLLedger(db)
	won, err := ledger.Reserve(context.Background(), "0xkey", 1700000600)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if !won {
		t.Error("Reserve() = false, want true for fresh key")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLLedgerReserveConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	// ON CONFLICT DO NOTHING reports zero rows affected for a settled key.
	mock.ExpectExec("INSERT INTO settlements").
		WithArgs("0xkey", int64(1700000600)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ledger := NewSQLLedger(db)
	won, err := ledger.Reserve(context.Background(), "0xkey", 1700000600)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if won {
		t.Error("Reserve() = true, want false for settled key")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLLedgerContains(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT 1 FROM settlements").
		WithArgs("0xsettled").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM settlements").
		WithArgs("0xfresh").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	ledger := NewSQLLedger(db)

	settled, err := ledger.Contains(context.Background(), "0xsettled")
	if err != nil {
		t.Fatalf("Contains() error = %v", err)
	}
	if !settled {
		t.Error("Contains() = false for settled key")
	}

	settled, err = ledger.Contains(context.Background(), "0xfresh")
	if err != nil {
		t.Fatalf("Contains() error = %v", err)
	}
	if settled {
		t.Error("Contains() = true for fresh key")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLLedgerPruneExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM settlements").
		WithArgs(int64(1700001000)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	ledger := NewSQLLedger(db)
	pruned, err := ledger.PruneExpired(context.Background(), 1700001000)
	if err != nil {
		t.Fatalf("PruneExpired() error = %v", err)
	}
	if pruned != 3 {
		t.Errorf("pruned = %d, want 3", pruned)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLLedgerEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS settlements").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewSQLLedger(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
