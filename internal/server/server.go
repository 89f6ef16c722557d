package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/holy-jesus/holynotifier/internal/config"
	"github.com/holy-jesus/holynotifier/internal/domain"
	"github.com/holy-jesus/holynotifier/internal/twitch"
)

// deliveryVerifier authenticates inbound webhook deliveries.
type deliveryVerifier interface {
	Verify(header http.Header, body []byte) (*twitch.Delivery, error)
}

// deliveryDispatcher routes a verified delivery and returns the handshake
// challenge when there is one.
type deliveryDispatcher interface {
	Dispatch(ctx context.Context, delivery *twitch.Delivery) (string, error)
}

// adminService backs the watchlist and recheck endpoints.
type adminService interface {
	Watch(ctx context.Context, login string) error
	Unwatch(ctx context.Context, channelID string) error
	Recheck(ctx context.Context) (bool, error)
}

// redisHealthChecker is the slice of the Redis client the readiness probe
// needs.
type redisHealthChecker interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

type Server struct {
	echo       *echo.Echo
	config     *config.Config
	verifier   deliveryVerifier
	dispatcher deliveryDispatcher
	admin      adminService
	notifier   domain.Notifier
	redis      redisHealthChecker
	clock      clockwork.Clock
	startTime  time.Time
}

func NewServer(
	cfg *config.Config,
	verifier deliveryVerifier,
	dispatcher deliveryDispatcher,
	admin adminService,
	notifier domain.Notifier,
	redis redisHealthChecker,
	clock clockwork.Clock,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:       e,
		config:     cfg,
		verifier:   verifier,
		dispatcher: dispatcher,
		admin:      admin,
		notifier:   notifier,
		redis:      redis,
		clock:      clock,
		startTime:  clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
