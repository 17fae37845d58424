package services

import (
	"context"
	"errors"
	"testing"

	"github.com/giftring/backend/internal/config"
	"github.com/giftring/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupInvitationService(t *testing.T) (*InvitationService, *Notifier, *gorm.DB) {
	t.Helper()
	db := setupServiceTestDB(t)
	identity := NewIdentityService(db)
	membership := NewMembershipService(db)
	notifier := NewNotifier(db, config.NotifyConfig{QueueBufferSize: 10})
	t.Cleanup(notifier.Close)
	service := NewInvitationService(db, identity, membership, notifier)
	return service, notifier, db
}

func TestInvitationService_CreateAndResolve(t *testing.T) {
	service, _, db := setupInvitationService(t)

	admin := createUser(t, db, "Admin", "admin@test.com")
	group := createGroup(t, db, "Club")
	addMember(t, db, group, admin, models.GroupRoleAdmin)

	t.Run("mints a resolvable token", func(t *testing.T) {
		invitation, err := service.CreateInvitation(context.TODO(), admin, group.ID, models.GroupRoleMember)
		if err != nil {
			t.Fatalf("CreateInvitation failed: %v", err)
		}
		if invitation.Token == "" {
			t.Fatal("expected a non-empty token")
		}
		if invitation.Used {
			t.Error("fresh invitations are unused")
		}

		resolved, err := service.GetByToken(context.TODO(), invitation.Token)
		if err != nil {
			t.Fatalf("GetByToken failed: %v", err)
		}
		if resolved.ID != invitation.ID {
			t.Error("token should resolve to the minted invitation")
		}
		if resolved.Group.Name != "Club" {
			t.Errorf("expected preloaded group, got %+v", resolved.Group)
		}
	})

	t.Run("rejects unknown roles", func(t *testing.T) {
		_, err := service.CreateInvitation(context.TODO(), admin, group.ID, "owner")
		if _, ok := AsValidationError(err); !ok {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown tokens are not found", func(t *testing.T) {
		_, err := service.GetByToken(context.TODO(), "no-such-token")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestInvitationService_Accept(t *testing.T) {
	service, notifier, db := setupInvitationService(t)

	admin := createUser(t, db, "Admin", "admin@test.com")
	group := createGroup(t, db, "Club")
	addMember(t, db, group, admin, models.GroupRoleAdmin)

	invitation, err := service.CreateInvitation(context.TODO(), admin, group.ID, models.GroupRoleMember)
	if err != nil {
		t.Fatalf("CreateInvitation failed: %v", err)
	}

	t.Run("actor joins itself", func(t *testing.T) {
		joiner := createUser(t, db, "Joiner", "joiner@test.com")

		result, err := service.AcceptInvitation(context.TODO(), invitation, joiner, []uuid.UUID{joiner.ID})
		if err != nil {
			t.Fatalf("AcceptInvitation failed: %v", err)
		}
		if !result.Success {
			t.Fatalf("expected success, got %+v", result)
		}
		if len(result.Results) != 1 || result.Results[0].UserID != joiner.ID {
			t.Errorf("expected joiner in results, got %+v", result.Results)
		}
		if result.Group.ID != group.ID || result.Group.Name != "Club" {
			t.Errorf("expected group summary, got %+v", result.Group)
		}

		var membership models.GroupMembership
		if err := db.First(&membership, "group_id = ? AND user_id = ?", group.ID, joiner.ID).Error; err != nil {
			t.Fatalf("membership should exist: %v", err)
		}
		if membership.Role != models.GroupRoleMember {
			t.Errorf("membership should carry the invitation role, got %s", membership.Role)
		}

		var refreshed models.Invitation
		if err := db.First(&refreshed, "id = ?", invitation.ID).Error; err != nil {
			t.Fatalf("failed reloading invitation: %v", err)
		}
		if !refreshed.Used {
			t.Error("acceptance should record the invitation as used")
		}
	})

	t.Run("used invitations keep working", func(t *testing.T) {
		late := createUser(t, db, "Latecomer", "late@test.com")

		result, err := service.AcceptInvitation(context.TODO(), invitation, late, []uuid.UUID{late.ID})
		if err != nil {
			t.Fatalf("AcceptInvitation failed: %v", err)
		}
		if !result.Success {
			t.Fatalf("a used invitation must stay acceptable, got %+v", result)
		}
	})

	t.Run("partial success adds some and reports the rest", func(t *testing.T) {
		parent := createUser(t, db, "Parent", "parent@test.com")
		child := createChild(t, db, parent, "Child")
		stranger := createUser(t, db, "Stranger", "stranger@test.com")

		result, err := service.AcceptInvitation(context.TODO(), invitation, parent,
			[]uuid.UUID{parent.ID, child.ID, stranger.ID, uuid.New()})
		if err != nil {
			t.Fatalf("AcceptInvitation failed: %v", err)
		}
		if !result.Success {
			t.Fatalf("adding parent and child should succeed overall, got %+v", result)
		}
		if len(result.Results) != 2 {
			t.Errorf("expected 2 additions, got %+v", result.Results)
		}
		if len(result.Errors) != 2 {
			t.Fatalf("expected 2 per-user errors, got %+v", result.Errors)
		}

		messages := map[uuid.UUID]string{}
		for _, e := range result.Errors {
			messages[e.UserID] = e.Error
		}
		if messages[stranger.ID] != "Not authorized to add this user" {
			t.Errorf("unexpected stranger error: %q", messages[stranger.ID])
		}

		var membershipCount int64
		db.Model(&models.GroupMembership{}).Where("group_id = ? AND user_id IN ?",
			group.ID, []uuid.UUID{parent.ID, child.ID}).Count(&membershipCount)
		if membershipCount != 2 {
			t.Errorf("parent and child should both be members, got %d", membershipCount)
		}

		var strangerCount int64
		db.Model(&models.GroupMembership{}).Where("group_id = ? AND user_id = ?", group.ID, stranger.ID).Count(&strangerCount)
		if strangerCount != 0 {
			t.Error("stranger must not be joined")
		}
	})

	t.Run("all-duplicate acceptance is idempotent success", func(t *testing.T) {
		repeat := createUser(t, db, "Repeat", "repeat@test.com")
		addMember(t, db, group, repeat, models.GroupRoleMember)

		result, err := service.AcceptInvitation(context.TODO(), invitation, repeat, []uuid.UUID{repeat.ID})
		if err != nil {
			t.Fatalf("AcceptInvitation failed: %v", err)
		}
		if !result.Success || !result.AlreadyMember {
			t.Fatalf("expected already-member success, got %+v", result)
		}
		if len(result.Errors) != 1 || result.Errors[0].Error != ErrAlreadyMember.Error() {
			t.Errorf("expected an already-member error entry, got %+v", result.Errors)
		}
	})

	t.Run("only unauthorized targets is a failure", func(t *testing.T) {
		actor := createUser(t, db, "Actor", "actor@test.com")
		victim := createUser(t, db, "Victim", "victim@test.com")

		result, err := service.AcceptInvitation(context.TODO(), invitation, actor, []uuid.UUID{victim.ID})
		if err != nil {
			t.Fatalf("AcceptInvitation failed: %v", err)
		}
		if result.Success {
			t.Fatalf("adding only a non-child stranger must fail, got %+v", result)
		}
		if len(result.Errors) != 1 {
			t.Fatalf("expected one error, got %+v", result.Errors)
		}
	})

	t.Run("input validation aborts the call", func(t *testing.T) {
		actor := createUser(t, db, "Validator", "validator@test.com")

		if _, err := service.AcceptInvitation(context.TODO(), nil, actor, []uuid.UUID{actor.ID}); !errors.Is(err, ErrNotFound) {
			t.Errorf("nil invitation should be not found, got %v", err)
		}
		if _, err := service.AcceptInvitation(context.TODO(), invitation, nil, []uuid.UUID{actor.ID}); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("nil actor should be unauthenticated, got %v", err)
		}
		if _, err := service.AcceptInvitation(context.TODO(), invitation, actor, nil); err == nil {
			t.Error("empty target list should be rejected")
		}
		if _, err := service.AcceptInvitation(context.TODO(), invitation, actor, []uuid.UUID{uuid.Nil}); err == nil {
			t.Error("nil uuid target should be rejected")
		}
	})

	// Drain the queue so the notification assertions below see stable rows.
	notifier.Close()

	t.Run("the group admin is notified about joins", func(t *testing.T) {
		var activities []models.Activity
		if err := db.Where("user_id = ? AND kind = ?", admin.ID, models.ActivityInvitationAccepted).Find(&activities).Error; err != nil {
			t.Fatalf("failed loading activities: %v", err)
		}
		if len(activities) == 0 {
			t.Fatal("expected acceptance notifications for the admin")
		}
		for _, a := range activities {
			if a.GroupID == nil || *a.GroupID != group.ID {
				t.Errorf("notification should reference the group, got %+v", a)
			}
		}
	})
}
