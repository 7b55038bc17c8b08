package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestDailyUsedNoRowsMeansZero(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT used`).
		WithArgs(int64(42), "keyword_analysis").
		WillReturnRows(sqlmock.NewRows([]string{"used"}))

	used, err := s.DailyUsed(context.Background(), 42, "keyword_analysis")
	if err != nil {
		t.Fatalf("DailyUsed returned error: %v", err)
	}
	if used != 0 {
		t.Fatalf("expected 0 uses, got %d", used)
	}
}

func TestDailyUsedReturnsCount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT used`).
		WithArgs(int64(42), "keyword_analysis").
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(7))

	used, err := s.DailyUsed(context.Background(), 42, "keyword_analysis")
	if err != nil {
		t.Fatalf("DailyUsed returned error: %v", err)
	}
	if used != 7 {
		t.Fatalf("expected 7 uses, got %d", used)
	}
}

func TestDailyUsedQueryError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT used`).
		WithArgs(int64(42), "keyword_analysis").
		WillReturnError(errors.New("boom"))

	if _, err := s.DailyUsed(context.Background(), 42, "keyword_analysis"); err == nil {
		t.Fatal("expected error when query fails")
	}
}

func TestListUsageByUser(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "feature_code", "credits_used", "remaining_credits", "description", "created_at",
	}).
		AddRow("a1b2", int64(42), "serp_analysis", 2, 93, "serp analysis", time.Now()).
		AddRow("c3d4", int64(42), "keyword_analysis", 1, 95, "keyword analysis", time.Now())

	mock.ExpectQuery(`SELECT (.+) FROM usage_logs`).
		WithArgs(int64(42), 50, 0).
		WillReturnRows(rows)

	entries, err := s.ListUsageByUser(context.Background(), 42, 50, 0)
	if err != nil {
		t.Fatalf("ListUsageByUser returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].FeatureCode != "serp_analysis" {
		t.Fatalf("unexpected feature code: %s", entries[0].FeatureCode)
	}
}

func TestListUsageByUserClampsLimit(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM usage_logs`).
		WithArgs(int64(42), defaultPageSize, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "feature_code", "credits_used", "remaining_credits", "description", "created_at",
		}))

	if _, err := s.ListUsageByUser(context.Background(), 42, 0, -5); err != nil {
		t.Fatalf("ListUsageByUser returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
