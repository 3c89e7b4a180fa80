package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	appHTTP "github.com/cmlabs-hris/geo-attendance/internal/handler/http"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/cron"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/database"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/email"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/face"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/geocode"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/jwt"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/keylock"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/sse"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/storage"
	"github.com/cmlabs-hris/geo-attendance/internal/repository/memory"
	"github.com/cmlabs-hris/geo-attendance/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/geo-attendance/internal/service/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/service/file"
	"github.com/cmlabs-hris/geo-attendance/internal/service/notification"
)

// stores groups the persistence backend selected by APP_PERSISTENCE
type stores struct {
	records   attendance.RecordRepository
	approvals attendance.ApprovalRepository
	sites     attendance.SiteDirectory
	employees attendance.EmployeeDirectory
	tx        attendance.Transactor
	close     func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.App.Persistence {
	case "postgres":
		db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		directory := postgresql.NewDirectoryRepository(db)
		return &stores{
			records:   postgresql.NewRecordRepository(db),
			approvals: postgresql.NewApprovalRepository(db),
			sites:     directory,
			employees: directory,
			tx:        postgresql.NewTransactor(db),
			close:     db.Close,
		}, nil

	case "memory":
		directory := memory.NewDirectory()
		if cfg.App.SeedFile != "" {
			var err error
			if directory, err = memory.LoadDirectory(cfg.App.SeedFile); err != nil {
				return nil, fmt.Errorf("load seed file: %w", err)
			}
		}
		return &stores{
			records:   memory.NewRecordRepository(),
			approvals: memory.NewApprovalRepository(),
			sites:     directory,
			employees: directory,
			tx:        memory.Transactor{},
			close:     func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported persistence %q", cfg.App.Persistence)
	}
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		return
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.App.LogLevel),
	})).With(slog.String("app", cfg.App.Name)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open stores: ", err)
	}
	defer st.close()

	locker, closeLocker, err := keylock.FromConfig(ctx, cfg.Lock)
	if err != nil {
		log.Fatal("Failed to initialize key lock: ", err)
	}
	defer closeLocker()

	fileStorage, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize storage: ", err)
	}
	fileService := file.NewFileService(fileStorage)

	emailService, err := email.NewEmailService(cfg.SMTP)
	if err != nil {
		log.Fatal("Failed to initialize email service: ", err)
	}

	hub := sse.NewHub()
	notificationService := notification.NewNotificationService(st.employees, emailService, hub, cfg.Attendance.Location, notification.Config{
		ReviewURL: cfg.App.ReviewURL,
	})

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	faceVerifier := face.NewVerifier(cfg.Face, fileStorage)
	geocoder := geocode.NewNominatim(cfg.Geocoder, &http.Client{Timeout: cfg.Geocoder.Timeout})

	attendanceSvc := attendanceService.NewAttendanceService(
		st.records,
		st.approvals,
		st.sites,
		st.tx,
		locker,
		notificationService,
		cfg.Attendance,
	)

	scheduler := cron.NewScheduler()
	if cfg.Cron.Enabled {
		cron.NewAttendanceJobs(attendanceSvc, notificationService, cfg.Cron, cfg.Attendance.Location).RegisterJobs(scheduler)
		scheduler.Start()
	}

	router := appHTTP.NewRouter(cfg, JWTService, appHTTP.Handlers{
		Attendance: appHTTP.NewAttendanceHandler(attendanceSvc, fileService, st.employees, faceVerifier, geocoder, cfg.Attendance),
		Approval:   appHTTP.NewApprovalHandler(attendanceSvc),
		Event:      appHTTP.NewEventHandler(hub, JWTService),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server running", "addr", server.Addr, "persistence", cfg.App.Persistence, "lock", cfg.Lock.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down...")

	// open event streams never finish on their own
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}

	scheduler.Stop()
	notificationService.Stop()
}
