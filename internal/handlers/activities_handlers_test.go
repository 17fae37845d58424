package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/giftring/backend/internal/models"
)

func seedActivities(t *testing.T, env *testEnv, user *models.User, actor *models.User, count int) []models.Activity {
	t.Helper()

	activities := make([]models.Activity, 0, count)
	for i := 0; i < count; i++ {
		activity := models.Activity{
			UserID:  user.ID,
			ActorID: actor.ID,
			Kind:    models.ActivityInvitationAccepted,
			Message: fmt.Sprintf("event %d", i),
		}
		if err := env.db.Create(&activity).Error; err != nil {
			t.Fatalf("failed seeding activity: %v", err)
		}
		activities = append(activities, activity)
	}
	return activities
}

func TestActivitiesHandlers(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "User", "user@test.com", "supersecret")
	actor, otherToken := createTestUser(t, env.db, "Actor", "actor@test.com", "supersecret")

	seeded := seedActivities(t, env, user, actor, 3)

	t.Run("lists own activities with pagination metadata", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/activities/?page=1&limit=2", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].([]any)
		if len(data) != 2 {
			t.Fatalf("expected 2 activities on the first page, got %d", len(data))
		}
		pagination, _ := body["pagination"].(map[string]any)
		if total, _ := pagination["total"].(float64); int(total) != 3 {
			t.Errorf("expected total=3, got %v", pagination["total"])
		}
	})

	t.Run("the feed is private", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/activities/", nil, authHeaders(otherToken))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].([]any)
		if len(data) != 0 {
			t.Errorf("actor should not see the user's feed, got %d entries", len(data))
		}
	})

	t.Run("unread count and mark read", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/activities/unread-count", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)
		body := decodeJSONMap(t, resp)
		data, _ := body["data"].(map[string]any)
		if count, _ := data["count"].(float64); int(count) != 3 {
			t.Fatalf("expected 3 unread, got %v", data["count"])
		}

		resp = performRequest(t, env.app, http.MethodPut, "/api/activities/"+seeded[0].ID.String()+"/read", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		resp = performRequest(t, env.app, http.MethodGet, "/api/activities/unread-count", nil, authHeaders(token))
		body = decodeJSONMap(t, resp)
		data, _ = body["data"].(map[string]any)
		if count, _ := data["count"].(float64); int(count) != 2 {
			t.Errorf("expected 2 unread after marking one, got %v", data["count"])
		}
	})

	t.Run("only the owner marks an activity read", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodPut, "/api/activities/"+seeded[1].ID.String()+"/read", nil, authHeaders(otherToken))
		assertStatus(t, resp, http.StatusForbidden)
	})

	t.Run("mark all read", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodPut, "/api/activities/read-all", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		resp = performRequest(t, env.app, http.MethodGet, "/api/activities/unread-count", nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		data, _ := body["data"].(map[string]any)
		if count, _ := data["count"].(float64); int(count) != 0 {
			t.Errorf("expected 0 unread after read-all, got %v", data["count"])
		}
	})
}
