package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/greenworld/greenworld/internal/account"
	"github.com/greenworld/greenworld/internal/api"
	"github.com/greenworld/greenworld/internal/event"
	"github.com/greenworld/greenworld/internal/rating"
	"github.com/greenworld/greenworld/internal/result"
	"github.com/greenworld/greenworld/internal/telemetry"
	"github.com/greenworld/greenworld/internal/trees"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Auth struct {
		Secret        string
		TokenTTLHours int32
	}

	Redis struct {
		Rating struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Accounts struct {
			Addr string
			User string
			Pass string
			Name string
		}

		Results struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	Trees struct {
		BasePrice int64
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			rating redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres struct {
			accounts *pgxpool.Pool
			results  *pgxpool.Pool
		}
	}

	service struct {
		account *account.Service
		result  *result.Service
		rating  *rating.Service
		trees   *trees.Service
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.rating, err = connect(s.c.Redis.Rating.Addrs, s.c.Redis.Rating.Pass)
	if err != nil {
		return fmt.Errorf("rating: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	connect := func(addr, user, pass, name string) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", user, pass, addr, name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	s.infra.postgres.accounts, err = connect(s.c.Postgres.Accounts.Addr, s.c.Postgres.Accounts.User, s.c.Postgres.Accounts.Pass, s.c.Postgres.Accounts.Name)
	if err != nil {
		return fmt.Errorf("postgres: accounts: %w", err)
	}

	s.infra.postgres.results, err = connect(s.c.Postgres.Results.Addr, s.c.Postgres.Results.User, s.c.Postgres.Results.Pass, s.c.Postgres.Results.Name)
	if err != nil {
		return fmt.Errorf("postgres: results: %w", err)
	}

	return nil
}

func (s *Server) initService() {
	s.service.account = account.NewService(account.Config{
		DB:       s.infra.postgres.accounts,
		Secret:   s.c.Auth.Secret,
		TokenTTL: time.Duration(s.c.Auth.TokenTTLHours) * time.Hour,
	})

	s.service.result = result.NewService(result.Config{
		EventBus: s.eb,
		DB:       s.infra.postgres.results,
	})

	s.service.rating = rating.NewService(rating.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.rating,
		Prefix:   s.c.Redis.Rating.Prefix,
	})

	s.service.trees = trees.NewService(trees.Config{
		DB:        s.infra.postgres.accounts,
		BasePrice: s.c.Trees.BasePrice,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Account:      s.service.account,
		Result:       s.service.result,
		Rating:       s.service.rating,
		Trees:        s.service.trees,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
