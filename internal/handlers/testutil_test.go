package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/giftring/backend/internal/config"
	"github.com/giftring/backend/internal/database"
	"github.com/giftring/backend/internal/middleware"
	"github.com/giftring/backend/internal/models"
	"github.com/giftring/backend/internal/services"
	"github.com/giftring/backend/pkg/logger"
	"github.com/giftring/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	notifier *services.Notifier
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
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

	identityService := services.NewIdentityService(db)
	visibilityService := services.NewVisibilityService(db, identityService)
	membershipService := services.NewMembershipService(db)
	notifier := services.NewNotifier(db, config.NotifyConfig{QueueBufferSize: 10})
	t.Cleanup(notifier.Close)
	groupService := services.NewGroupService(db)
	invitationService := services.NewInvitationService(db, identityService, membershipService, notifier)
	giftService := services.NewGiftService(db, identityService, visibilityService)

	authHandler := NewAuthHandler(db)
	usersHandler := NewUsersHandler(db, identityService, visibilityService)
	childrenHandler := NewChildrenHandler(db, identityService)
	groupsHandler := NewGroupsHandler(db, groupService, membershipService, visibilityService)
	invitationsHandler := NewInvitationsHandler(db, groupService, invitationService, visibilityService)
	giftsHandler := NewGiftsHandler(db, giftService)
	activitiesHandler := NewActivitiesHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	api.Get("/users/search", authMiddleware.RequireAuth, usersHandler.Search)
	api.Get("/users/:id", authMiddleware.RequireAuth, usersHandler.Get)
	api.Delete("/users/me", authMiddleware.RequireAuth, usersHandler.DeleteMe)

	childRoutes := api.Group("/children", authMiddleware.RequireAuth)
	childRoutes.Post("/", childrenHandler.Create)
	childRoutes.Get("/", childrenHandler.List)
	childRoutes.Put("/:id", childrenHandler.Update)
	childRoutes.Delete("/:id", childrenHandler.Delete)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", groupsHandler.Create)
	groupRoutes.Get("/", groupsHandler.List)
	groupRoutes.Get("/:id", groupsHandler.Get)
	groupRoutes.Put("/:id", groupsHandler.Update)
	groupRoutes.Delete("/:id", groupsHandler.Delete)
	groupRoutes.Get("/:id/members", groupsHandler.ListMembers)
	groupRoutes.Post("/:id/members", groupsHandler.AddMember)
	groupRoutes.Delete("/:id/members/:userId", groupsHandler.RemoveMember)
	groupRoutes.Put("/:id/members/:userId", groupsHandler.UpdateMemberRole)
	groupRoutes.Post("/:id/leave", groupsHandler.Leave)
	groupRoutes.Post("/:id/invitations", invitationsHandler.Create)
	groupRoutes.Get("/:id/invitations", invitationsHandler.ListForGroup)

	api.Get("/invitations/:token/preview", invitationsHandler.Preview)
	api.Post("/invitations/:token/accept", authMiddleware.RequireAuth, invitationsHandler.Accept)
	api.Delete("/invitations/:id", authMiddleware.RequireAuth, invitationsHandler.Delete)

	giftRoutes := api.Group("/gifts", authMiddleware.RequireAuth)
	giftRoutes.Post("/", giftsHandler.Create)
	giftRoutes.Get("/", giftsHandler.List)
	giftRoutes.Get("/:id", giftsHandler.Get)
	giftRoutes.Put("/:id", giftsHandler.Update)
	giftRoutes.Delete("/:id", giftsHandler.Delete)
	giftRoutes.Post("/:id/buying", giftsHandler.MarkAsBuying)
	giftRoutes.Post("/:id/bought", giftsHandler.MarkAsBought)
	giftRoutes.Delete("/:id/buying", giftsHandler.CancelBuying)

	activityRoutes := api.Group("/activities", authMiddleware.RequireAuth)
	activityRoutes.Get("/", activitiesHandler.List)
	activityRoutes.Get("/unread-count", activitiesHandler.UnreadCount)
	activityRoutes.Put("/read-all", activitiesHandler.MarkAllRead)
	activityRoutes.Put("/:id/read", activitiesHandler.MarkRead)

	return &testEnv{app: app, db: db, notifier: notifier}
}

func createTestUser(t *testing.T, db *gorm.DB, name, email, password string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Name:         name,
		Email:        &email,
		PasswordHash: hash,
		AccountType:  models.AccountTypeStandard,
		Locale:       "en",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestChild(t *testing.T, db *gorm.DB, parent *models.User, name string) *models.User {
	t.Helper()

	child := &models.User{
		Name:        name,
		AccountType: models.AccountTypeManaged,
		ParentID:    &parent.ID,
		Locale:      parent.Locale,
	}
	if err := db.Create(child).Error; err != nil {
		t.Fatalf("failed creating managed child: %v", err)
	}
	return child
}

func createTestGroup(t *testing.T, db *gorm.DB, name string, adminIDs []*models.User, memberIDs []*models.User) *models.Group {
	t.Helper()

	group := &models.Group{Name: name}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed creating test group: %v", err)
	}
	for _, user := range adminIDs {
		membership := &models.GroupMembership{GroupID: group.ID, UserID: user.ID, Role: models.GroupRoleAdmin}
		if err := db.Create(membership).Error; err != nil {
			t.Fatalf("failed creating admin membership: %v", err)
		}
	}
	for _, user := range memberIDs {
		membership := &models.GroupMembership{GroupID: group.ID, UserID: user.ID, Role: models.GroupRoleMember}
		if err := db.Create(membership).Error; err != nil {
			t.Fatalf("failed creating member membership: %v", err)
		}
	}
	return group
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
