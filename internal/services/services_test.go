package services

import (
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	"github.com/giftring/backend/internal/database"
	"github.com/giftring/backend/internal/models"
	"github.com/giftring/backend/pkg/logger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var serviceTestOnce sync.Once

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	serviceTestOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	return db
}

func createUser(t *testing.T, db *gorm.DB, name, email string) *models.User {
	t.Helper()

	user := &models.User{
		Name:         name,
		Email:        &email,
		PasswordHash: "hash",
		AccountType:  models.AccountTypeStandard,
		Locale:       "en",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user %s: %v", name, err)
	}
	return user
}

func createChild(t *testing.T, db *gorm.DB, parent *models.User, name string) *models.User {
	t.Helper()

	child := &models.User{
		Name:        name,
		AccountType: models.AccountTypeManaged,
		ParentID:    &parent.ID,
		Locale:      parent.Locale,
	}
	if err := db.Create(child).Error; err != nil {
		t.Fatalf("failed creating managed child %s: %v", name, err)
	}
	return child
}

func createGroup(t *testing.T, db *gorm.DB, name string) *models.Group {
	t.Helper()

	group := &models.Group{Name: name}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed creating group %s: %v", name, err)
	}
	return group
}

func addMember(t *testing.T, db *gorm.DB, group *models.Group, user *models.User, role models.GroupMembershipRole) *models.GroupMembership {
	t.Helper()

	membership := &models.GroupMembership{GroupID: group.ID, UserID: user.ID, Role: role}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed adding %s to %s: %v", user.Name, group.Name, err)
	}
	return membership
}

func createGift(t *testing.T, db *gorm.DB, creator *models.User, title string, status models.GiftIdeaStatus, recipients ...*models.User) *models.GiftIdea {
	t.Helper()

	gift := &models.GiftIdea{
		Title:       title,
		Status:      status,
		CreatedByID: creator.ID,
	}
	if err := db.Create(gift).Error; err != nil {
		t.Fatalf("failed creating gift %s: %v", title, err)
	}
	for _, recipient := range recipients {
		row := &models.GiftRecipient{GiftIdeaID: gift.ID, UserID: recipient.ID}
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("failed adding recipient to %s: %v", title, err)
		}
	}
	return gift
}
