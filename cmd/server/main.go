package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"sectf/api"
	"sectf/auth"
	"sectf/config"
	"sectf/crypto"
	"sectf/logger"
	"sectf/relay"
	"sectf/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.SetTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})
	r.GET("/health", func(ctx *gin.Context) { ctx.String(200, "healthy") })

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	lg := logger.Setup(cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	n, err := openNode(ctx, cfg, lg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not open node")
	}
	defer n.close()
	room := n.roomID.String()

	passwordHasher, err := crypto.NewArgon2idHasher(argon2Params(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid argon2 parameters")
	}
	if err := passwordHasher.CheckHash(cfg.OperatorPasswordHash); err != nil {
		if !errors.Is(err, crypto.ErrWeakHashParams) {
			log.Fatal().Err(err).Msg("invalid OPERATOR_PASSWORD_HASH")
		}
		lg.Warn().Err(err).Msg("operator password hash is cheaper than the configured argon2 cost")
	}
	tokenManager := crypto.NewJWTManager(cfg.JWTKey, cfg.TokenAge)
	authService := auth.NewService(cfg.OperatorPasswordHash, room, passwordHasher, tokenManager)
	authHandler := auth.NewAuthHandler(authService, cfg.TokenAge, lg)

	r := CreateServer(cfg.AllowedOrigins)
	{
		authGroup := r.Group("/auth")
		authGroup.POST("/login", authHandler.LoginHandler)
		authGroup.POST("/logout", authHandler.LogoutHandler)
		authGroup.GET("/refresh", authHandler.RefreshSessionHandler)
	}

	sess := session.New(n.sessionConfig(cfg), n.oracle, n.store, n.engine, session.NewTickerGen(), lg)
	{
		nodeGroup := r.Group("/node")
		nodeGroup.Use(authHandler.RequireAuthMiddleware(time.Second * 2))
		api.NewNodeHandler(sess, room, cfg.TxTimeout, lg).Register(nodeGroup)
	}

	wg := sync.WaitGroup{}
	if cfg.ServeRelay {
		hub := relay.NewHub(relay.NewUUIDGen(), lg)
		hubStarted := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Run(ctx, hubStarted)
		}()
		<-hubStarted
		r.GET("/relay/:room", hub.Handler)
	}

	var transport session.Transport = noTransport{}
	if cfg.RelayURL != "" {
		link := newRelayLink(cfg.RelayURL, cfg.AllowedOrigins[0], sess, lg)
		transport = link
		wg.Add(1)
		go func() {
			defer wg.Done()
			link.run(ctx)
		}()
	}

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()
	log.Info().Str("addr", cfg.ListenAddr).Str("room", room).Msg("server started")

	if err := sess.Run(ctx, transport); err != nil {
		log.Error().Err(err).Msg("session ended")
		stop()
	}
	<-ctx.Done()
	log.Info().Msg("SIGTERM or SIGINT received, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	log.Info().Msg("shutting down now")
}
