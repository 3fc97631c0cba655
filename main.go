package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vbfalcao/finassist/agent/agents/analyst"
	capabilityx "github.com/vbfalcao/finassist/agent/capability"
	contractx "github.com/vbfalcao/finassist/agent/contract"
	dispatcherx "github.com/vbfalcao/finassist/agent/dispatcher"
	llmx "github.com/vbfalcao/finassist/agent/llm"
	sessionx "github.com/vbfalcao/finassist/agent/session"
	configx "github.com/vbfalcao/finassist/pkg/config"
	_ "github.com/vbfalcao/finassist/pkg/logger/autoload"
)

type AppConfig struct {
	ListenAddr      string        `envconfig:"LISTEN_ADDR" split_words:"true" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"10s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("APP")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")

	registry, err := analyst.NewRegistry(ctx, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build model registry")
	}
	if err := analyst.Probe(ctx, *llmCfg); err != nil {
		log.Warn().Err(err).Msg("completion provider probe failed, continuing")
	}

	d, err := dispatcherx.New(ctx, registry, sessionFactory(), bootstraps(), *configx.MustNew[dispatcherx.Config]("DISPATCHER"))
	if err != nil {
		log.Fatal().Err(err).Msg("build dispatcher")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/answer", answerHandler(d))

	srv := &http.Server{
		Addr:    appCfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", appCfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

// sessionFactory prefers the Upstash-backed store and falls back to process
// memory when it is not configured.
func sessionFactory() sessionx.Factory {
	cfg, err := configx.New[sessionx.UpstashRedisConfig]("UPSTASH_REDIS")
	if err != nil {
		log.Warn().Err(err).Msg("upstash not configured, using in-process session memory")
		return sessionx.NewInMemoryFactory()
	}
	factory, err := sessionx.NewUpstashRedisFactory(*cfg)
	if err != nil {
		log.Warn().Err(err).Msg("upstash factory failed, using in-process session memory")
		return sessionx.NewInMemoryFactory()
	}
	return factory
}

func bootstraps() []capabilityx.Bootstrap {
	return []capabilityx.Bootstrap{
		{
			Name: capabilityx.NameDates,
			Build: func(context.Context) (contractx.Invoker, error) {
				return capabilityx.NewDateResolver(nil), nil
			},
		},
		{
			Name: capabilityx.NameDataStore,
			Build: func(context.Context) (contractx.Invoker, error) {
				cfg, err := configx.New[capabilityx.SupabaseConfig]("SUPABASE")
				if err != nil {
					return nil, err
				}
				return capabilityx.NewSupabaseStore(*cfg)
			},
		},
		{
			Name: capabilityx.NameMarketData,
			Build: func(context.Context) (contractx.Invoker, error) {
				cfg, err := configx.New[capabilityx.MarketDataConfig]("MARKET_DATA")
				if err != nil {
					return nil, err
				}
				return capabilityx.NewMarketDataClient(*cfg)
			},
		},
		{
			Name: capabilityx.NameCharts,
			Build: func(context.Context) (contractx.Invoker, error) {
				cfg, err := configx.New[capabilityx.ChartRenderConfig]("CHART_RENDER")
				if err != nil {
					return nil, err
				}
				return capabilityx.NewChartRenderClient(*cfg)
			},
		},
	}
}

type answerRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

func answerHandler(d *dispatcherx.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.UserID) == "" {
			http.Error(w, "question and user_id are required", http.StatusBadRequest)
			return
		}

		answer := d.Answer(r.Context(), req.Question, req.UserID)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(answerResponse{Answer: answer}); err != nil {
			log.Error().Err(err).Msg("encode answer response")
		}
	}
}
