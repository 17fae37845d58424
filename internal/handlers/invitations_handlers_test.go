package handlers

import (
	"net/http"
	"testing"

	"github.com/giftring/backend/internal/models"
	"github.com/google/uuid"
)

func TestInvitationsHandlers(t *testing.T) {
	env := setupTestEnv(t)
	admin, adminToken := createTestUser(t, env.db, "Admin", "admin@test.com", "supersecret")
	member, memberToken := createTestUser(t, env.db, "Member", "member@test.com", "supersecret")

	group := createTestGroup(t, env.db, "Club", []*models.User{admin}, []*models.User{member})
	base := "/api/groups/" + group.ID.String()

	var token string

	t.Run("admin mints an invitation", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, base+"/invitations", map[string]any{
			"role": "member",
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusCreated)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].(map[string]any)
		token, _ = data["token"].(string)
		if token == "" {
			t.Fatal("expected an invitation token")
		}
	})

	t.Run("plain members mint invitations too", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, base+"/invitations", map[string]any{
			"role": "member",
		}, authHeaders(memberToken))
		assertStatus(t, resp, http.StatusCreated)
	})

	t.Run("non-members may not mint invitations", func(t *testing.T) {
		_, outsiderToken := createTestUser(t, env.db, "Minter", "minter@test.com", "supersecret")
		resp := performJSONRequest(t, env.app, http.MethodPost, base+"/invitations", map[string]any{
			"role": "member",
		}, authHeaders(outsiderToken))
		assertStatus(t, resp, http.StatusForbidden)
	})

	t.Run("group members list invitations", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, base+"/invitations", nil, authHeaders(memberToken))
		assertStatus(t, resp, http.StatusOK)
		body := decodeJSONMap(t, resp)
		data, _ := body["data"].([]any)
		if len(data) != 2 {
			t.Fatalf("expected 2 invitations, got %d", len(data))
		}
	})

	t.Run("preview resolves the token without auth", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/invitations/"+token+"/preview", nil, nil)
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].(map[string]any)
		groupData, _ := data["group"].(map[string]any)
		if groupData["name"] != "Club" {
			t.Errorf("expected group name in preview, got %v", groupData["name"])
		}
	})

	t.Run("unknown token previews as not found", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/invitations/no-such-token/preview", nil, nil)
		assertStatus(t, resp, http.StatusNotFound)
	})

	t.Run("accept defaults to the caller", func(t *testing.T) {
		_, joinerToken := createTestUser(t, env.db, "Joiner", "joiner@test.com", "supersecret")

		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/accept", map[string]any{}, authHeaders(joinerToken))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		if success, _ := body["success"].(bool); !success {
			t.Fatalf("expected success, got %+v", body)
		}
		results, _ := body["results"].([]any)
		if len(results) != 1 {
			t.Errorf("expected one result, got %+v", results)
		}
	})

	t.Run("accept with children reports partial errors inline", func(t *testing.T) {
		parent, parentToken := createTestUser(t, env.db, "Parent", "parent@test.com", "supersecret")
		child := createTestChild(t, env.db, parent, "Child")
		stranger, _ := createTestUser(t, env.db, "Stranger", "stranger@test.com", "supersecret")

		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/accept", map[string]any{
			"userIDs": []uuid.UUID{parent.ID, child.ID, stranger.ID},
		}, authHeaders(parentToken))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		if success, _ := body["success"].(bool); !success {
			t.Fatalf("expected overall success, got %+v", body)
		}
		results, _ := body["results"].([]any)
		if len(results) != 2 {
			t.Errorf("expected parent and child added, got %+v", results)
		}
		errorsList, _ := body["errors"].([]any)
		if len(errorsList) != 1 {
			t.Fatalf("expected one per-user error, got %+v", errorsList)
		}
	})

	t.Run("re-accepting is an idempotent already-member success", func(t *testing.T) {
		_, repeatToken := createTestUser(t, env.db, "Repeat", "repeat@test.com", "supersecret")

		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/accept", map[string]any{}, authHeaders(repeatToken))
		assertStatus(t, resp, http.StatusOK)

		resp = performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/accept", map[string]any{}, authHeaders(repeatToken))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		if already, _ := body["alreadyMember"].(bool); !already {
			t.Errorf("expected alreadyMember flag, got %+v", body)
		}
	})

	t.Run("adding only unauthorized users is unprocessable", func(t *testing.T) {
		_, actorToken := createTestUser(t, env.db, "Actor", "actor@test.com", "supersecret")
		victim, _ := createTestUser(t, env.db, "Victim", "victim@test.com", "supersecret")

		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/accept", map[string]any{
			"userIDs": []uuid.UUID{victim.ID},
		}, authHeaders(actorToken))
		assertStatus(t, resp, http.StatusUnprocessableEntity)
	})

	t.Run("accept requires authentication", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/accept", map[string]any{}, nil)
		assertStatus(t, resp, http.StatusUnauthorized)
	})

	t.Run("creator deletes the invitation", func(t *testing.T) {
		var invitation models.Invitation
		if err := env.db.First(&invitation, "token = ?", token).Error; err != nil {
			t.Fatalf("failed loading invitation: %v", err)
		}

		resp := performRequest(t, env.app, http.MethodDelete, "/api/invitations/"+invitation.ID.String(), nil, authHeaders(memberToken))
		assertStatus(t, resp, http.StatusForbidden)

		resp = performRequest(t, env.app, http.MethodDelete, "/api/invitations/"+invitation.ID.String(), nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		resp = performRequest(t, env.app, http.MethodDelete, "/api/invitations/"+invitation.ID.String(), nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusNotFound)
	})
}
