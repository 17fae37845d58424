package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giftring/backend/internal/config"
	"github.com/giftring/backend/internal/database"
	"github.com/giftring/backend/internal/handlers"
	"github.com/giftring/backend/internal/middleware"
	"github.com/giftring/backend/internal/services"
	"github.com/giftring/backend/pkg/logger"
	"github.com/giftring/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	identityService := services.NewIdentityService(db)
	visibilityService := services.NewVisibilityService(db, identityService)
	membershipService := services.NewMembershipService(db)
	notifier := services.NewNotifier(db, cfg.Notify)
	defer notifier.Close()
	groupService := services.NewGroupService(db)
	invitationService := services.NewInvitationService(db, identityService, membershipService, notifier)
	giftService := services.NewGiftService(db, identityService, visibilityService)

	authHandler := handlers.NewAuthHandler(db)
	usersHandler := handlers.NewUsersHandler(db, identityService, visibilityService)
	childrenHandler := handlers.NewChildrenHandler(db, identityService)
	groupsHandler := handlers.NewGroupsHandler(db, groupService, membershipService, visibilityService)
	invitationsHandler := handlers.NewInvitationsHandler(db, groupService, invitationService, visibilityService)
	giftsHandler := handlers.NewGiftsHandler(db, giftService)
	activitiesHandler := handlers.NewActivitiesHandler(db)

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
	activityRoutes.Put("/:id/read", activitiesHandler.MarkRead)
	activityRoutes.Put("/read-all", activitiesHandler.MarkAllRead)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
