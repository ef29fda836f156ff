package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pmsf-backend/internal/config"
	"pmsf-backend/internal/db"
	"pmsf-backend/internal/handler"
	"pmsf-backend/internal/repository"
	"pmsf-backend/internal/server"
	"pmsf-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Config{}.NewLogger().Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect database", "err", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		logger.Error("failed to apply schema", "err", err)
		os.Exit(1)
	}

	// repositories
	userRepo := repository.UserRepository{DB: pg}
	roleRepo := repository.RoleRepository{DB: pg}
	auditRepo := repository.AuditRepository{DB: pg}
	branchRepo := repository.BranchRepository{DB: pg}
	checklistRepo := repository.ChecklistRepository{DB: pg}
	visitRepo := repository.VisitRepository{DB: pg}
	quizRepo := repository.QuizRepository{DB: pg}

	// services
	authSvc := service.AuthService{Config: cfg, Users: userRepo, Audit: auditRepo, Tx: pg, Logger: logger, Now: cfg.Now}
	adminSvc := service.AdminService{Users: userRepo, Roles: roleRepo, Audit: auditRepo, Tx: pg, Logger: logger, BcryptCost: cfg.BcryptCost}
	checklistSvc := service.ChecklistService{Store: checklistRepo, Tx: pg, Logger: logger}
	visitSvc := service.VisitService{Visits: visitRepo, Branches: branchRepo, Checklist: checklistRepo, Tx: pg, Logger: logger, Now: cfg.Now}
	mediaSvc := service.MediaService{Dir: cfg.UploadDir, MaxBytes: cfg.MaxUploadBytes, MaxDimension: cfg.MaxImageDimension, Logger: logger, Now: cfg.Now}
	quizSvc := service.QuizService{Store: quizRepo, Tx: pg, Logger: logger}

	// handlers
	handlers := server.Handlers{
		Health:    handler.HealthHandler{DB: pg, Logger: logger},
		Auth:      handler.AuthHandler{Service: &authSvc, Logger: logger},
		Admin:     handler.AdminHandler{Service: &adminSvc, Logger: logger},
		Branch:    handler.BranchHandler{Repo: branchRepo, Logger: logger},
		Checklist: handler.ChecklistHandler{Service: &checklistSvc, Logger: logger},
		Visit:     handler.VisitHandler{Service: &visitSvc, Location: cfg.Location, Logger: logger},
		Media:     handler.MediaHandler{Service: &mediaSvc, Logger: logger},
		Quiz:      handler.QuizHandler{Service: &quizSvc, Logger: logger},
		Docs:      handler.DocsHandler{OpenAPIPath: cfg.OpenAPIPath},
	}

	router := server.NewRouter(cfg, logger, roleRepo, handlers)

	if err := server.Start(ctx, cfg, router, logger); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
