package actions

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/helper"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/staging"
	"github.com/relloyd/fieldpipe/stats"
)

type WebServerConfig struct {
	Log      logger.Logger
	Scheme   string `errorTxt:"scheme" mandatory:"no"`
	Addr     net.IP `errorTxt:"address" mandatory:"no"`
	Port     int    `errorTxt:"port" mandatory:"yes"`
	Pipeline *PipelineConfig
}

// RunWebServer serves the pipeline over HTTP until SIGINT/SIGTERM or ctx is done.
// Runs still in flight are cancelled and waited for before the server stops.
func RunWebServer(ctx context.Context, web *WebServerConfig) error {
	if web == nil || web.Pipeline == nil || web.Log == nil {
		return errors.New("nil pointer to web server config supplied")
	}
	if err := helper.ValidateStructIsPopulated(web); err != nil {
		return err
	}
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()
	s := newWebServer(runCtx, web.Log, web.Pipeline)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%v:%v", web.Addr, web.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      s.router(),
	}
	chanSrvErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			chanSrvErr <- err
		}
	}()
	web.Log.Info(fmt.Sprintf("Listening on %v://%v:%v", strings.ToLower(web.Scheme), web.Addr, web.Port))
	return s.wait(ctx, srv, cancelRuns, chanSrvErr)
}

type webServer struct {
	ctx      context.Context // parent of every launched run
	log      logger.Logger
	cfg      *PipelineConfig
	runs     *RunRegistry
	wg       sync.WaitGroup
	chanStop chan string
}

func newWebServer(ctx context.Context, log logger.Logger, cfg *PipelineConfig) *webServer {
	return &webServer{
		ctx:      ctx,
		log:      log,
		cfg:      cfg,
		runs:     NewRunRegistry(),
		chanStop: make(chan string, 1),
	}
}

func (s *webServer) router() *mux.Router {
	r := mux.NewRouter()
	r.Path("/health").Methods(http.MethodGet).HandlerFunc(GetHandlerHealth(s.log))
	r.Path("/stop").Methods(http.MethodPost).HandlerFunc(GetHandlerStopServer(s.log, s.chanStop))
	r.Path("/metrics").Methods(http.MethodGet).Handler(promhttp.HandlerFor(stats.Registry, promhttp.HandlerOpts{}))
	r.Path("/entities").Methods(http.MethodGet).HandlerFunc(GetHandlerEntityList(s.log, s.cfg.Catalog))
	r.Path("/runs").Methods(http.MethodGet).HandlerFunc(GetHandlerRunList(s.log, s.runs))
	r.Path("/runs/full").Methods(http.MethodPost).HandlerFunc(s.handleLaunchFull)
	r.Path("/runs/incremental").Methods(http.MethodPost).HandlerFunc(s.handleLaunchIncremental)
	r.Path("/runs/entity/{entity}").Methods(http.MethodPost).HandlerFunc(s.handleLaunchEntity)
	r.Path("/runs/{runId}").Methods(http.MethodGet).HandlerFunc(GetHandlerRunStatus(s.log, s.runs))
	r.Path("/staging/merge").Methods(http.MethodPost).HandlerFunc(s.handleLaunchMerge)
	return r
}

// launch registers a run for entities and executes fn in the background.
func (s *webServer) launch(kind RunKind, entities []string, fn func(ctx context.Context) (*PipelineResult, *staging.Summary, error)) (RunInfo, error) {
	info, err := s.runs.Start(kind, entities)
	if err != nil {
		return info, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := s.log.WithFields(map[string]interface{}{"run": info.RunID})
		log.Info(fmt.Sprintf("%v run started for %v entities", kind, len(entities)))
		p, stg, err := fn(s.ctx)
		if err != nil {
			log.Error(err)
		}
		s.runs.Finish(info.RunID, p, stg, err)
		log.Info(fmt.Sprintf("%v run finished", kind))
	}()
	return info, nil
}

func (s *webServer) wait(ctx context.Context, srv *http.Server, cancelRuns context.CancelFunc, chanSrvErr chan error) error {
	// Accept graceful shutdowns when quit via SIGINT (Ctrl+C) or SIGTERM.
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(chanOS)
	var srvErr error
	select {
	case <-s.chanStop:
	case <-chanOS:
	case <-ctx.Done():
	case srvErr = <-chanSrvErr:
	}
	s.log.Info("Shutting down web server...")
	if n := s.runs.Running(); n > 0 {
		s.log.Warn(fmt.Sprintf("cancelling %v run(s) in flight", n))
	}
	cancelRuns()
	s.wg.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.WebServerShutdownTimeoutSecs*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return srvErr
}
