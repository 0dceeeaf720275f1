package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/smallbiznis/ledgercore/internal/account/domain"
	autojournaldomain "github.com/smallbiznis/ledgercore/internal/autojournal/domain"
	"github.com/smallbiznis/ledgercore/internal/config"
	journaldomain "github.com/smallbiznis/ledgercore/internal/journal/domain"
	ledgerdomain "github.com/smallbiznis/ledgercore/internal/ledger/domain"
	"github.com/smallbiznis/ledgercore/internal/observability"
	obslogger "github.com/smallbiznis/ledgercore/internal/observability/logger"
	obstracing "github.com/smallbiznis/ledgercore/internal/observability/tracing"
	reconciledomain "github.com/smallbiznis/ledgercore/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log, obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware(log))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Params struct {
	fx.In

	Engine       *gin.Engine
	DB           *gorm.DB
	AccountSvc   accountdomain.Service
	JournalSvc   journaldomain.Service
	LedgerSvc    ledgerdomain.Service
	AutoJournal  autojournaldomain.Service
	ReconcileSvc reconciledomain.Service
}

type Server struct {
	engine       *gin.Engine
	db           *gorm.DB
	accountSvc   accountdomain.Service
	journalSvc   journaldomain.Service
	ledgerSvc    ledgerdomain.Service
	autoJournal  autojournaldomain.Service
	reconcileSvc reconciledomain.Service
}

func NewServer(p Params) *Server {
	return &Server{
		engine:       p.Engine,
		db:           p.DB,
		accountSvc:   p.AccountSvc,
		journalSvc:   p.JournalSvc,
		ledgerSvc:    p.LedgerSvc,
		autoJournal:  p.AutoJournal,
		reconcileSvc: p.ReconcileSvc,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/health", s.Health)

	api := s.engine.Group("/api", OrgContext())

	api.POST("/accounts", s.CreateAccount)
	api.GET("/accounts", s.ListAccounts)
	api.GET("/accounts/tree", s.GetAccountTree)
	api.POST("/accounts/default-chart", s.SeedDefaultChart)
	api.GET("/accounts/:id", s.GetAccount)
	api.PATCH("/accounts/:id", s.UpdateAccount)
	api.DELETE("/accounts/:id", s.DeleteAccount)
	api.GET("/accounts/:id/statement", s.GetAccountStatement)
	api.GET("/accounts/:id/balance", s.GetAccountBalance)

	api.POST("/journal-entries", s.CreateJournalEntry)
	api.GET("/journal-entries", s.ListJournalEntries)
	api.GET("/journal-entries/:id", s.GetJournalEntry)
	api.PUT("/journal-entries/:id", s.UpdateJournalEntry)
	api.DELETE("/journal-entries/:id", s.DeleteJournalEntry)
	api.POST("/journal-entries/:id/post", s.PostJournalEntry)
	api.POST("/journal-entries/:id/reverse", s.ReverseJournalEntry)

	api.GET("/trial-balance", s.GetTrialBalance)

	api.POST("/business-events", s.RecordBusinessEvent)
	api.GET("/business-events/rules", s.ListBusinessEventRules)

	api.POST("/intermediary-accounts", s.CreateIntermediaryAccount)
	api.GET("/intermediary-accounts", s.ListIntermediaryAccounts)
	api.POST("/vouchers", s.RecordVoucher)
	api.GET("/vouchers", s.ListVouchers)
	api.POST("/reconciliations/run", s.RunAutoReconcile)
	api.GET("/reconciliations", s.ListReconciliations)
	api.GET("/reconciliations/:id", s.GetReconciliation)
	api.POST("/reconciliations/:id/confirm", s.ConfirmReconciliation)
	api.POST("/reconciliations/:id/reject", s.RejectReconciliation)
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
