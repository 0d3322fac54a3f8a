// Package testutil opens migrated in-memory stores and seeds lifecycle
// fixtures for package tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	dbfs "github.com/garnizeh/bidflow/db"
	"github.com/garnizeh/bidflow/internal/db"
	"github.com/garnizeh/bidflow/internal/repository/sqlstore"
	"github.com/garnizeh/bidflow/pkg/models"
)

// NewStore returns a repository over a fresh in-memory SQLite database with
// all migrations applied. The database is closed when the test ends.
func NewStore(t testing.TB) *sqlstore.Repo {
	t.Helper()
	ctx := context.Background()

	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlstore.New(d, nil)
}

// PostgresDSNEnv names the variable that points concurrency tests at a
// Postgres database instead of in-memory SQLite.
const PostgresDSNEnv = "BIDFLOW_TEST_POSTGRES_DSN"

// NewConcurrentStore returns a store for tests that race transactions. It uses
// the Postgres database in $BIDFLOW_TEST_POSTGRES_DSN when set, where
// transactions really overlap, and falls back to NewStore otherwise.
// Fixtures on Postgres are not cleaned up; seed with fresh ids.
func NewConcurrentStore(t testing.TB) *sqlstore.Repo {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		return NewStore(t)
	}
	ctx := context.Background()

	d, err := db.Open(ctx, db.DriverPostgres, dsn, nil)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlstore.New(d, nil)
}

// SeedClaim creates an OPEN claim owned by ownerID.
func SeedClaim(t testing.TB, s *sqlstore.Repo, ownerID string) *models.Claim {
	t.Helper()
	c := &models.Claim{OwnerID: ownerID, Title: "Water damage restoration"}
	if err := s.CreateClaim(context.Background(), c); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	return c
}

// SeedAuction creates an open auction for the claim ending at end.
func SeedAuction(t testing.TB, s *sqlstore.Repo, claimID string, end time.Time) *models.Auction {
	t.Helper()
	a := &models.Auction{
		ClaimID:     claimID,
		StartingBid: decimal.NewFromInt(20000),
		EndTime:     end,
		CreatedAt:   end.Add(-72 * time.Hour),
	}
	if err := s.CreateAuction(context.Background(), a); err != nil {
		t.Fatalf("seed auction: %v", err)
	}
	return a
}

// SeedBid places an active bid and registers the contractor as a pending
// participant of the claim.
func SeedBid(t testing.TB, s *sqlstore.Repo, a *models.Auction, contractorID, amount string, at time.Time) *models.Bid {
	t.Helper()
	ctx := context.Background()
	b := &models.Bid{
		AuctionID:    a.ID,
		ContractorID: contractorID,
		Amount:       decimal.RequireFromString(amount),
		CreatedAt:    at,
	}
	if err := s.CreateBid(ctx, b); err != nil {
		t.Fatalf("seed bid: %v", err)
	}
	if err := s.UpsertParticipant(ctx, a.ClaimID, contractorID, models.ParticipantPending, at); err != nil {
		t.Fatalf("seed participant: %v", err)
	}
	return b
}
