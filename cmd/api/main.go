package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/aqnus/sis-api/api/swagger"
	"github.com/aqnus/sis-api/internal/handler"
	"github.com/aqnus/sis-api/internal/middleware"
	"github.com/aqnus/sis-api/internal/repository"
	"github.com/aqnus/sis-api/internal/service"
	"github.com/aqnus/sis-api/pkg/cache"
	"github.com/aqnus/sis-api/pkg/config"
	"github.com/aqnus/sis-api/pkg/database"
	"github.com/aqnus/sis-api/pkg/jobs"
	"github.com/aqnus/sis-api/pkg/logger"
	corsmiddleware "github.com/aqnus/sis-api/pkg/middleware/cors"
	reqidmiddleware "github.com/aqnus/sis-api/pkg/middleware/requestid"
)

// @title SIS API
// @version 0.1.0
// @description School information system: enrollment, timetabling and library circulation
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, timetable cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	studentClassRepo := repository.NewStudentClassRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	personRepo := repository.NewPersonRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	schoolYearRepo := repository.NewSchoolYearRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	timeSlotRepo := repository.NewTimeSlotRepository(db)
	qualificationRepo := repository.NewQualificationRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	copyRepo := repository.NewCopyRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	enrollmentUOW := service.NewEnrollmentUnitOfWork(db, enrollmentRepo, studentClassRepo, movementRepo)
	timetableUOW := service.NewTimetableUnitOfWork(db, timetableRepo)
	libraryUOW := service.NewLibraryUnitOfWork(db, loanRepo, copyRepo)

	personSvc := service.NewPersonService(personRepo, validate, logr)
	schoolYearSvc := service.NewSchoolYearService(schoolYearRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, schoolRepo, schoolYearRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, validate, logr)
	timeSlotSvc := service.NewTimeSlotService(timeSlotRepo, validate, logr)
	qualificationSvc := service.NewQualificationService(qualificationRepo, personRepo, subjectRepo, schoolYearRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, enrollmentUOW, movementRepo, personRepo, classRepo, schoolYearRepo, validate, logr)
	timetableSvc := service.NewTimetableService(timetableRepo, timetableUOW, qualificationRepo, personRepo, subjectRepo, timeSlotRepo, classRepo, cacheRepo, cfg.Timetable.CacheEnabled, cfg.Timetable.CacheTTL, metricsSvc, validate, logr)
	catalogSvc := service.NewCatalogService(catalogRepo, copyRepo, validate, logr)
	librarySvc := service.NewLibraryService(loanRepo, copyRepo, libraryUOW, personRepo, classRepo, validate, logr)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	timetableHandler := handler.NewTimetableHandler(timetableSvc)
	libraryHandler := handler.NewLibraryHandler(librarySvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	classHandler := handler.NewClassHandler(classSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	schoolYearHandler := handler.NewSchoolYearHandler(schoolYearSvc)
	timeSlotHandler := handler.NewTimeSlotHandler(timeSlotSvc)
	qualificationHandler := handler.NewQualificationHandler(qualificationSvc)
	personHandler := handler.NewPersonHandler(personSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/people", personHandler.List)
		api.POST("/people", personHandler.Create)
		api.GET("/people/:id", personHandler.Get)
		api.PUT("/people/:id", personHandler.Update)

		api.GET("/students", personHandler.ListStudents)
		api.POST("/students", personHandler.CreateStudent)
		api.GET("/students/:id", personHandler.GetStudent)
		api.GET("/students/:id/guardians", personHandler.ListGuardians)
		api.POST("/students/:id/guardians", personHandler.LinkGuardian)
		api.GET("/students/:id/movements", enrollmentHandler.Movements)

		api.GET("/teachers", personHandler.ListTeachers)
		api.POST("/teachers", personHandler.CreateTeacher)
		api.POST("/staff", personHandler.CreateStaff)
		api.POST("/guardians", personHandler.CreateGuardian)

		api.GET("/schools", classHandler.ListSchools)
		api.POST("/schools", classHandler.CreateSchool)

		api.GET("/school-years", schoolYearHandler.List)
		api.POST("/school-years", schoolYearHandler.Create)
		api.GET("/school-years/:id", schoolYearHandler.Get)
		api.PUT("/school-years/:id", schoolYearHandler.Update)

		api.GET("/classes", classHandler.List)
		api.POST("/classes", classHandler.Create)
		api.GET("/classes/:id", classHandler.Get)
		api.PUT("/classes/:id", classHandler.Update)

		api.GET("/subjects", subjectHandler.List)
		api.POST("/subjects", subjectHandler.Create)
		api.GET("/subjects/:id", subjectHandler.Get)
		api.PUT("/subjects/:id", subjectHandler.Update)

		api.GET("/time-slots", timeSlotHandler.List)
		api.POST("/time-slots", timeSlotHandler.Create)
		api.GET("/time-slots/:id", timeSlotHandler.Get)

		api.GET("/qualifications", qualificationHandler.List)
		api.POST("/qualifications", qualificationHandler.Grant)
		api.DELETE("/qualifications/:id", qualificationHandler.Revoke)

		api.GET("/enrollments", enrollmentHandler.List)
		api.POST("/enrollments", enrollmentHandler.Create)
		api.GET("/enrollments/:id", enrollmentHandler.Get)
		api.POST("/enrollments/:id/close", enrollmentHandler.Close)
		api.POST("/enrollments/:id/cancel", enrollmentHandler.Cancel)
		api.POST("/enrollments/:id/transfer", enrollmentHandler.Transfer)

		api.GET("/timetables", timetableHandler.Active)
		api.POST("/timetables", timetableHandler.Create)
		api.GET("/timetables/:id", timetableHandler.Get)
		api.POST("/timetables/:id/activate", timetableHandler.Activate)
		api.POST("/timetables/:id/items", timetableHandler.AddItem)
		api.PUT("/timetable-items/:id", timetableHandler.UpdateItem)
		api.DELETE("/timetable-items/:id", timetableHandler.DeleteItem)

		api.GET("/authors", catalogHandler.ListAuthors)
		api.POST("/authors", catalogHandler.CreateAuthor)
		api.GET("/publishers", catalogHandler.ListPublishers)
		api.POST("/publishers", catalogHandler.CreatePublisher)
		api.GET("/library-subjects", catalogHandler.ListLibrarySubjects)
		api.POST("/library-subjects", catalogHandler.CreateLibrarySubject)

		api.GET("/works", catalogHandler.ListWorks)
		api.POST("/works", catalogHandler.CreateWork)
		api.GET("/works/:id", catalogHandler.GetWork)
		api.PUT("/works/:id", catalogHandler.UpdateWork)

		api.GET("/copies", catalogHandler.ListCopies)
		api.POST("/copies", catalogHandler.CreateCopy)
		api.PUT("/copies/:id/condition", catalogHandler.UpdateCopyCondition)

		api.GET("/loans", libraryHandler.List)
		api.POST("/loans", libraryHandler.Create)
		api.GET("/loans/:id", libraryHandler.Get)
		api.POST("/loans/:id/return", libraryHandler.Return)
		api.POST("/loan-sweeps", libraryHandler.MarkOverdue)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sweepQueue *jobs.Queue
	var sweepTicker *jobs.Ticker
	if cfg.Library.SweepEnabled {
		sweepQueue = jobs.NewQueue("library-maintenance", func(jobCtx context.Context, job jobs.Job) error {
			marked, err := librarySvc.MarkOverdueLoans(jobCtx)
			if err != nil {
				return err
			}
			metricsSvc.ObserveOverdueSweep(marked)
			return nil
		}, jobs.QueueConfig{
			Workers:    cfg.Library.SweepWorkers,
			MaxRetries: cfg.Library.SweepRetries,
			Logger:     logr,
		})
		sweepQueue.Start(ctx)
		sweepTicker = jobs.NewTicker(sweepQueue, "overdue-sweep", cfg.Library.SweepInterval, logr)
		sweepTicker.Start(ctx)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	if sweepTicker != nil {
		sweepTicker.Stop()
	}
	if sweepQueue != nil {
		sweepQueue.Stop()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
