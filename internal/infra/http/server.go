package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"veilcloud/internal/config"
	"veilcloud/internal/domain"
	"veilcloud/internal/infra/db"
	"veilcloud/internal/infra/ledgerdb"
	"veilcloud/internal/infra/ledgermem"
	"veilcloud/internal/infra/snapmem"
	"veilcloud/internal/infra/veilchain"
	"veilcloud/internal/usecase"
)

type Server struct {
	cfg    config.Config
	store  *db.Store
	logger zerolog.Logger
	r      *gin.Engine

	proofs *usecase.ProofService
}

func NewServer(cfg config.Config, store *db.Store, logger zerolog.Logger) (*Server, error) {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, logger: logger, r: r}
	if err := s.initDeps(); err != nil {
		return nil, err
	}
	s.routes()
	return s, nil
}

type ServerDeps struct {
	Proofs *usecase.ProofService
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		logger: zerolog.Nop(),
		r:      r,
		proofs: deps.Proofs,
	}
	s.routes()
	return s
}

func (s *Server) initDeps() error {
	var ledger domain.Ledger
	switch {
	case s.cfg.LedgerURL != "":
		client, err := veilchain.NewClient(s.cfg.LedgerURL,
			veilchain.WithTimeout(s.cfg.LedgerTimeout()),
			veilchain.WithRetry(s.cfg.LedgerRetryAttempts, s.cfg.LedgerRetryBase()))
		if err != nil {
			return err
		}
		ledger = client
		s.logger.Info().Str("url", s.cfg.LedgerURL).Msg("using networked ledger")
	case s.store != nil && s.store.DB != nil:
		ledger = ledgerdb.New(db.NewLedgerEntryRepository(s.store.DB))
		s.logger.Info().Msg("using database ledger")
	default:
		ledger = ledgermem.New()
		s.logger.Warn().Msg("using in-memory ledger, entries are not durable")
	}

	var snapshots usecase.SnapshotRepository
	if s.store != nil && s.store.DB != nil {
		snapshots = db.NewSnapshotRepository(s.store.DB)
	} else {
		snapshots = snapmem.New()
	}

	s.proofs = &usecase.ProofService{
		Ledger:    ledger,
		Snapshots: snapshots,
	}
	return nil
}

// Proofs exposes the wired facade so main can hand it to the snapshot
// scheduler.
func (s *Server) Proofs() *usecase.ProofService {
	return s.proofs
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		mode := "no-db"
		if s.store != nil && s.store.DB != nil {
			mode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": mode})
	})

	audit := s.r.Group("/audit")
	{
		audit.POST("/verify", s.handleVerifyInclusion)
		audit.POST("/verify/consistency", s.handleVerifyConsistency)

		audit.POST("/:scope/entries", s.handleRecordEntry)
		audit.GET("/:scope/proof/:entry_id", s.handleInclusionProof)
		audit.GET("/:scope/consistency", s.handleConsistencyProof)
		audit.GET("/:scope/root", s.handleTreeState)
		audit.POST("/:scope/snapshots", s.handleCreateSnapshot)
		audit.GET("/:scope/snapshots", s.handleListSnapshots)
		audit.GET("/:scope/snapshots/:id", s.handleGetSnapshot)
		audit.GET("/:scope/export", s.handleExportBundle)
	}
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}
