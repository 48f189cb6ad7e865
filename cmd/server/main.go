// Daicho - small-business back office
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aethra/daicho/internal/api"
	"github.com/aethra/daicho/internal/auth"
	"github.com/aethra/daicho/internal/config"
	"github.com/aethra/daicho/internal/database"
	"github.com/aethra/daicho/internal/engine"
	"github.com/aethra/daicho/internal/logger"
	"github.com/aethra/daicho/internal/models"
	"github.com/aethra/daicho/internal/postal"
	"github.com/aethra/daicho/internal/storage"
	"github.com/aethra/daicho/internal/ui"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Version = "1.0.0"

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "daicho")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "serve":
		startServer(cfg, log)
	case "migrate":
		db := connectDB(cfg, log)
		if err := database.RunMigrations(db, log); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
		fmt.Println("Migrations complete")
	case "employee":
		runEmployeeCmd(cfg, log)
	case "version":
		fmt.Println("daicho", Version)
	default:
		printUsage()
	}
}

func printUsage() {
	fmt.Println(`Usage: daicho <command>
Commands:
  serve                         Start server (default)
  migrate                       Run migrations
  employee list                 List employees
  employee create --code= --email= --password= --last= [--first=] [--role=admin|staff]
                                Create an employee
  version                       Print version`)
}

func startServer(cfg *config.Config, log *zap.Logger) {
	log.Info("starting", zap.String("version", Version))

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("missing required env: JWT_SECRET")
	}

	db := connectDB(cfg, log)
	if err := database.RunMigrations(db, log); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	ctx := context.Background()
	rdb, err := database.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	if rdb == nil {
		log.Warn("REDIS_ADDR not set: logout revocation and postal cache disabled")
	} else {
		defer rdb.Close()
	}

	store, err := storage.NewLocalStore(cfg.Storage.Dir)
	if err != nil {
		log.Fatal("storage unavailable", zap.Error(err), zap.String("dir", cfg.Storage.Dir))
	}

	settings := config.NewSettingsService(db)
	projects := engine.NewProjectEngine(db)
	svc := api.Services{
		Accounts:   engine.NewAccountEngine(db),
		Contacts:   engine.NewContactEngine(db),
		Employees:  engine.NewEmployeeEngine(db),
		Projects:   projects,
		Tasks:      engine.NewTaskEngine(db),
		Comments:   engine.NewCommentEngine(db),
		Calendar:   engine.NewCalendarEngine(db),
		Attendance: engine.NewAttendanceEngine(db),
		Invoices:   engine.NewInvoiceEngine(db, settings),
		Templates:  engine.NewTemplateEngine(db, store, projects, settings),
		Settings:   settings,
		Postal:     postal.NewGuesser(cfg.AI, postal.NewRedisCache(rdb), log),
	}
	if cfg.AI.APIKey == "" {
		log.Info("AI_API_KEY not set: postal code lookup disabled")
	}

	renderer, err := ui.NewRenderer()
	if err != nil {
		log.Fatal("templates failed to parse", zap.Error(err))
	}
	loginLimiter, err := api.NewLoginLimiter(cfg.Server.LoginRate)
	if err != nil {
		log.Fatal("invalid LOGIN_RATE", zap.Error(err), zap.String("rate", cfg.Server.LoginRate))
	}

	gin.SetMode(cfg.Server.Mode)
	tokens := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessExpiry)
	handler := api.NewHandler(svc, tokens, auth.NewRedisRevoker(rdb), log, cfg.Auth.SecureCookie)
	router := api.SetupRouter(handler, renderer, cfg, loginLimiter, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
}

func connectDB(cfg *config.Config, log *zap.Logger) *gorm.DB {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	log.Info("database connected", zap.String("host", cfg.Database.Host), zap.String("name", cfg.Database.Name))
	return db
}

// CLI
func runEmployeeCmd(cfg *config.Config, log *zap.Logger) {
	if len(os.Args) < 3 {
		printUsage()
		return
	}
	db := connectDB(cfg, log)
	employees := engine.NewEmployeeEngine(db)
	ctx := context.Background()

	switch os.Args[2] {
	case "list":
		result, err := employees.List(ctx, "", engine.Page{PageSize: 100})
		if err != nil {
			log.Fatal("list failed", zap.Error(err))
		}
		for _, e := range result.Data {
			status := ""
			if !e.IsActive {
				status = " (inactive)"
			}
			fmt.Printf("%s  %s <%s> %s%s\n", e.Code, e.FullName(), e.Email, e.Role, status)
		}
	case "create":
		in := engine.EmployeeInput{
			Code:      getFlag("--code"),
			LastName:  getFlag("--last"),
			FirstName: getFlag("--first"),
			Email:     getFlag("--email"),
			Password:  getFlag("--password"),
			Role:      strings.ToLower(getFlag("--role")),
			IsActive:  true,
		}
		if in.Role == "" {
			in.Role = string(models.RoleAdmin)
		}
		if in.Code == "" || in.Email == "" || in.Password == "" || in.LastName == "" {
			printUsage()
			return
		}
		emp, err := employees.Create(ctx, in)
		if err != nil {
			log.Fatal("create failed", zap.Error(err))
		}
		fmt.Printf("Employee created: %s <%s>\n", emp.FullName(), emp.Email)
	default:
		printUsage()
	}
}

func getFlag(name string) string {
	prefix := name + "="
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, prefix) {
			return arg[len(prefix):]
		}
	}
	return ""
}
