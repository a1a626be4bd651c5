package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ThreadRepositoryTestSuite is the test suite for ThreadRepository
type ThreadRepositoryTestSuite struct {
	suite.Suite
	db          *gorm.DB
	repo        ThreadRepository
	testAccount *models.EmailAccount
}

// SetupSuite runs once before all tests
func (s *ThreadRepositoryTestSuite) SetupSuite() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)

	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(&models.EmailAccount{}, &models.Thread{})
	require.NoError(s.T(), err)

	s.db = db
	s.repo = NewThreadRepository(db)
}

// TearDownSuite runs once after all tests
func (s *ThreadRepositoryTestSuite) TearDownSuite() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SetupTest runs before each test
func (s *ThreadRepositoryTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM threads")
	s.db.Exec("DELETE FROM email_accounts")

	s.testAccount = &models.EmailAccount{
		TenantID:      "tenant-1",
		Provider:      models.ProviderGmail,
		EmailAddress:  "user@example.com",
		CredentialRef: "cred-1",
		Active:        true,
		SyncState:     models.SyncStateIdle,
	}
	require.NoError(s.T(), s.db.Create(s.testAccount).Error)
}

// TestThreadRepositoryTestSuite runs the test suite
func TestThreadRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(ThreadRepositoryTestSuite))
}

// ==================== Upsert Tests ====================

func (s *ThreadRepositoryTestSuite) TestUpsert_CreatesThread() {
	at := time.Now().UTC()

	id, err := s.repo.Upsert(context.Background(), s.testAccount.ID, "conv-1", "Quote request", "alice@example.com", at)

	assert.NoError(s.T(), err)
	assert.NotZero(s.T(), id)

	thread, err := s.repo.GetByID(context.Background(), id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), thread.MessageCount)
	assert.Equal(s.T(), "Quote request", thread.Subject)
}

func (s *ThreadRepositoryTestSuite) TestUpsert_SecondMessageIncrementsCount() {
	at := time.Now().UTC()
	first, err := s.repo.Upsert(context.Background(), s.testAccount.ID, "conv-1", "Quote request", "alice@example.com", at)
	require.NoError(s.T(), err)

	second, err := s.repo.Upsert(context.Background(), s.testAccount.ID, "conv-1", "Quote request", "bob@example.com", at.Add(time.Minute))

	assert.NoError(s.T(), err)
	assert.Equal(s.T(), first, second)

	thread, err := s.repo.GetByID(context.Background(), first)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), thread.MessageCount)
	assert.Equal(s.T(), "bob@example.com", thread.LastSender)
}

func (s *ThreadRepositoryTestSuite) TestUpsert_SameProviderThreadDifferentAccounts() {
	other := &models.EmailAccount{
		TenantID:      "tenant-2",
		Provider:      models.ProviderGmail,
		EmailAddress:  "other@example.com",
		CredentialRef: "cred-2",
		Active:        true,
		SyncState:     models.SyncStateIdle,
	}
	require.NoError(s.T(), s.db.Create(other).Error)

	at := time.Now().UTC()
	id1, err := s.repo.Upsert(context.Background(), s.testAccount.ID, "conv-1", "Hello", "a@example.com", at)
	require.NoError(s.T(), err)
	id2, err := s.repo.Upsert(context.Background(), other.ID, "conv-1", "Hello", "b@example.com", at)
	require.NoError(s.T(), err)

	assert.NotEqual(s.T(), id1, id2)
}

// ==================== ListByAccount Tests ====================

func (s *ThreadRepositoryTestSuite) TestListByAccount_OrderedByLastActivity() {
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := s.repo.Upsert(context.Background(), s.testAccount.ID,
			fmt.Sprintf("conv-%d", i), "Subject", "a@example.com", base.Add(time.Duration(i)*time.Hour))
		require.NoError(s.T(), err)
	}

	threads, total, err := s.repo.ListByAccount(context.Background(), s.testAccount.ID, 10, 0)

	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(3), total)
	require.Len(s.T(), threads, 3)
	assert.Equal(s.T(), "conv-2", threads[0].ProviderThreadID)
}

func (s *ThreadRepositoryTestSuite) TestGetByID_NotFound() {
	thread, err := s.repo.GetByID(context.Background(), 99999)

	assert.ErrorIs(s.T(), err, ErrNotFound)
	assert.Nil(s.T(), thread)
}
