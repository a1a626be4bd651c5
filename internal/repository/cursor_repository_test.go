package repository

import (
	"context"
	"testing"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CursorRepositoryTestSuite is the test suite for CursorRepository
type CursorRepositoryTestSuite struct {
	suite.Suite
	db          *gorm.DB
	repo        CursorRepository
	testAccount *models.EmailAccount
}

// SetupSuite runs once before all tests
func (s *CursorRepositoryTestSuite) SetupSuite() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)

	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(&models.EmailAccount{}, &models.SyncCursor{})
	require.NoError(s.T(), err)

	s.db = db
	s.repo = NewCursorRepository(db)
}

// TearDownSuite runs once after all tests
func (s *CursorRepositoryTestSuite) TearDownSuite() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SetupTest runs before each test
func (s *CursorRepositoryTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM sync_cursors")
	s.db.Exec("DELETE FROM email_accounts")

	s.testAccount = &models.EmailAccount{
		TenantID:      "tenant-1",
		Provider:      models.ProviderGraph,
		EmailAddress:  "user@example.com",
		CredentialRef: "cred-1",
		Active:        true,
		SyncState:     models.SyncStateIdle,
	}
	require.NoError(s.T(), s.db.Create(s.testAccount).Error)
}

// TestCursorRepositoryTestSuite runs the test suite
func TestCursorRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(CursorRepositoryTestSuite))
}

// ==================== Get Tests ====================

func (s *CursorRepositoryTestSuite) TestGet_NotFoundWhenNeverSynced() {
	cursor, err := s.repo.Get(context.Background(), s.testAccount.ID, models.ProviderGraph)

	assert.ErrorIs(s.T(), err, ErrNotFound)
	assert.Nil(s.T(), cursor)
}

// ==================== Upsert Tests ====================

func (s *CursorRepositoryTestSuite) TestUpsert_CreatesCursor() {
	err := s.repo.Upsert(context.Background(), s.testAccount.ID, models.ProviderGraph, "delta-token-1")

	assert.NoError(s.T(), err)
	cursor, err := s.repo.Get(context.Background(), s.testAccount.ID, models.ProviderGraph)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "delta-token-1", cursor.Value)
}

func (s *CursorRepositoryTestSuite) TestUpsert_AdvancesExistingCursor() {
	require.NoError(s.T(), s.repo.Upsert(context.Background(), s.testAccount.ID, models.ProviderGraph, "delta-token-1"))

	err := s.repo.Upsert(context.Background(), s.testAccount.ID, models.ProviderGraph, "delta-token-2")

	assert.NoError(s.T(), err)
	cursor, err := s.repo.Get(context.Background(), s.testAccount.ID, models.ProviderGraph)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "delta-token-2", cursor.Value)

	// Still a single row per (account, provider)
	var count int64
	s.db.Model(&models.SyncCursor{}).Count(&count)
	assert.Equal(s.T(), int64(1), count)
}

func (s *CursorRepositoryTestSuite) TestUpsert_ProvidersKeepSeparateCursors() {
	require.NoError(s.T(), s.repo.Upsert(context.Background(), s.testAccount.ID, models.ProviderGraph, "delta-1"))
	require.NoError(s.T(), s.repo.Upsert(context.Background(), s.testAccount.ID, models.ProviderIMAP, "42:1007"))

	graph, err := s.repo.Get(context.Background(), s.testAccount.ID, models.ProviderGraph)
	require.NoError(s.T(), err)
	imap, err := s.repo.Get(context.Background(), s.testAccount.ID, models.ProviderIMAP)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), "delta-1", graph.Value)
	assert.Equal(s.T(), "42:1007", imap.Value)
}

// ==================== Delete Tests ====================

func (s *CursorRepositoryTestSuite) TestDelete_RemovesCursor() {
	require.NoError(s.T(), s.repo.Upsert(context.Background(), s.testAccount.ID, models.ProviderIMAP, "42:1007"))

	err := s.repo.Delete(context.Background(), s.testAccount.ID, models.ProviderIMAP)

	assert.NoError(s.T(), err)
	_, err = s.repo.Get(context.Background(), s.testAccount.ID, models.ProviderIMAP)
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *CursorRepositoryTestSuite) TestDelete_MissingCursorIsNoError() {
	err := s.repo.Delete(context.Background(), s.testAccount.ID, models.ProviderIMAP)
	assert.NoError(s.T(), err)
}
