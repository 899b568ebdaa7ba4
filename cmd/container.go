// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis) and wires every
// module's collaborators by hand — this is the only place that knows about
// all of them at once.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/manifesto-gateway/core/pkg/config"
	"github.com/manifesto-gateway/core/pkg/gateway"
	"github.com/manifesto-gateway/core/pkg/iam/authsvc"
	"github.com/manifesto-gateway/core/pkg/iam/credential"
	"github.com/manifesto-gateway/core/pkg/iam/policy"
	"github.com/manifesto-gateway/core/pkg/iam/policy/policyredis"
	"github.com/manifesto-gateway/core/pkg/iam/ratelimit"
	"github.com/manifesto-gateway/core/pkg/iam/ratelimit/ratelimitredis"
	"github.com/manifesto-gateway/core/pkg/iam/secret"
	"github.com/manifesto-gateway/core/pkg/iam/secret/secretinfra"
	"github.com/manifesto-gateway/core/pkg/iam/secret/secretsrv"
	"github.com/manifesto-gateway/core/pkg/iam/session"
	"github.com/manifesto-gateway/core/pkg/iam/session/sessionredis"
	"github.com/manifesto-gateway/core/pkg/iam/token"
	"github.com/manifesto-gateway/core/pkg/iam/token/tokenredis"
	"github.com/manifesto-gateway/core/pkg/iam/userdir"
	"github.com/manifesto-gateway/core/pkg/iam/userdir/userdirhttp"
	"github.com/manifesto-gateway/core/pkg/iam/userdir/userdirpg"
	"github.com/manifesto-gateway/core/pkg/jobx"
	"github.com/manifesto-gateway/core/pkg/jobx/jobxredis"
	"github.com/manifesto-gateway/core/pkg/logx"
)

// Container holds shared infrastructure and every wired collaborator the
// Gateway needs to run.
type Container struct {
	Config *config.Config
	Log    *logx.Logger

	DB    *sqlx.DB
	Redis *redis.Client

	Credentials *credential.Selector
	Prober      *credential.Prober
	Tokens      *token.Service
	Limiter     *ratelimit.Limiter
	Sessions    *session.Registry
	Policy      *policy.Engine
	Auth        *authsvc.Service
	Jobs        *jobx.Client
	Gateway     *gateway.Gateway
	InternalAPI *gateway.InternalAPI
}

// NewContainer builds and wires every collaborator for cfg.
func NewContainer(cfg *config.Config) *Container {
	log := logx.NewLogger(logx.LoadFromEnv())
	logx.Info("initializing gateway container...")

	c := &Container{Config: cfg, Log: log}

	c.initInfrastructure()
	c.initSecurity()
	c.initSessionAndPolicy()
	c.initCredentials()
	c.initAuth()
	c.initJobs()
	c.initGateway()

	logx.Info("gateway container initialized")
	return c
}

func (c *Container) initInfrastructure() {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Config.Database.Host,
		c.Config.Database.Port,
		c.Config.Database.User,
		c.Config.Database.Password,
		c.Config.Database.Name,
		c.Config.Database.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		logx.Fatalf("failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db
	logx.Info("  database connected")

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		logx.Fatalf("failed to connect to redis: %v (redis is required)", err)
	}
	logx.Info("  redis connected")
}

// initSecurity wires the token service and the rate limiter.
func (c *Container) initSecurity() {
	algorithm := token.AlgorithmHMAC
	if c.Config.JWT.Algorithm == "RS256" {
		algorithm = token.AlgorithmRSA
	}
	signer, err := token.NewSigner(token.SignerConfig{
		Algorithm:        algorithm,
		HMACSecret:       c.Config.JWT.Secret,
		RSAPrivateKeyPEM: c.Config.JWT.RSAPrivateKeyPEM,
		RSAPublicKeyPEM:  c.Config.JWT.RSAPublicKeyPEM,
		Issuer:           c.Config.JWT.Issuer,
		Audience:         c.Config.JWT.Audience,
		AccessTokenTTL:   c.Config.JWT.AccessTokenTTL,
		RefreshTokenTTL:  c.Config.JWT.RefreshTokenTTL,
	})
	if err != nil {
		logx.Fatalf("failed to initialize token signer: %v", err)
	}
	blacklist := tokenredis.NewBlacklist(c.Redis)
	c.Tokens = token.NewService(signer, blacklist, c.Log)
	logx.Info("  token service initialized")

	window := ratelimitredis.NewWindow(c.Redis)
	c.Limiter = ratelimit.NewLimiter(window, c.Log)
	logx.Info("  rate limiter initialized")
}

// initSessionAndPolicy wires the session registry and the policy
// engine, the latter feeding the former nothing directly but sharing
// the same Redis-backed infrastructure.
func (c *Container) initSessionAndPolicy() {
	sessionRepo := sessionredis.NewRepository(c.Redis, c.Config.Session.HardTTL)
	revokeJTI := func(ctx context.Context, jti string, reason string) {
		c.Tokens.RevokeAllFor(ctx, "", []string{jti}, reason, c.Config.JWT.RefreshTokenTTL)
	}
	c.Sessions = session.NewRegistry(sessionRepo, revokeJTI, session.Policy{
		MaxConcurrent:           c.Config.Session.MaxConcurrent,
		SSOMode:                 c.Config.Session.SSOMode,
		IdleTimeout:             c.Config.Session.IdleTimeout,
		HardTTL:                 c.Config.Session.HardTTL,
		RecentActivityCap:       c.Config.Session.RecentActivityCap,
		RecentActivityTTL:       c.Config.Session.RecentActivityTTL,
		HijackIPChangeThreshold: c.Config.Session.HijackIPChangeThreshold,
		HijackIPChangeWindow:    c.Config.Session.HijackIPChangeWindow,
		UASimilarityThreshold:   c.Config.Session.UASimilarityThreshold,
	}, c.Log)
	logx.Info("  session registry initialized")

	policyStore := policyredis.NewStore(c.Redis)
	autoBan := policyredis.NewAutoBan(c.Redis)
	defaults := policy.Document{
		Password: policy.PasswordPolicy{
			MinLength:          c.Config.Policy.Password.MinLength,
			MaxLength:          c.Config.Policy.Password.MaxLength,
			RequireUpper:       c.Config.Policy.Password.RequireUpper,
			RequireLower:       c.Config.Policy.Password.RequireLower,
			RequireDigit:       c.Config.Policy.Password.RequireDigit,
			RequireSpecial:     c.Config.Policy.Password.RequireSpecial,
			SpecialCharSet:     c.Config.Policy.Password.SpecialCharSet,
			CommonPasswordDeny: c.Config.Policy.Password.CommonPasswordDeny,
		},
		IP: policy.IPPolicy{
			DenyCIDRs:          c.Config.Policy.IP.DenyCIDRs,
			AllowCIDRs:         c.Config.Policy.IP.AllowCIDRs,
			AllowListExclusive: c.Config.Policy.IP.AllowListExclusive,
			AutoBanEnabled:     c.Config.Policy.IP.AutoBanEnabled,
			AutoBanThreshold:   c.Config.Policy.IP.AutoBanThreshold,
			AutoBanDuration:    c.Config.Policy.IP.AutoBanDuration,
			AutoBanCounterTTL:  c.Config.Policy.IP.AutoBanCounterTTL,
		},
		MaxLoginAttempts:  c.Config.Policy.MaxLoginAttempts,
		SessionTimeoutMin: int(c.Config.Session.IdleTimeout.Minutes()),
		RetentionDays:     c.Config.Policy.RetentionDays,
	}
	c.Policy = policy.NewEngine(policyStore, autoBan, defaults)
	logx.Info("  policy engine initialized")
}

// initCredentials wires the secret store and the credential selector
// on top of it.
func (c *Container) initCredentials() {
	repo := secretinfra.NewPostgresCredentialRepository(c.DB)
	cipher, err := secret.NewCipher([]byte(c.Config.Secret.MasterKey[:32]))
	if err != nil {
		logx.Fatalf("failed to initialize secret cipher: %v", err)
	}
	secrets := secretsrv.NewSecretService(repo, cipher)

	c.Credentials = credential.NewSelector(secrets)
	c.Prober = credential.NewProber(secrets, 10*time.Second)
	logx.Info("  credential selector initialized")
}

// initAuth wires the external User Directory port and the Authentication
// orchestrator on top of the collaborators built so far.
func (c *Container) initAuth() {
	var directory userdir.Directory
	if c.Config.UserDirectory.Mode == "postgres" {
		directory = userdirpg.NewDirectory(c.DB)
	} else {
		directory = userdirhttp.NewClient(c.Config.UserDirectory.BaseURL, c.Config.UserDirectory.Timeout)
	}

	loginLimit := authsvc.LoginLimit{
		Requests: c.Config.RateLimit.EndpointOverrides["POST /api/v1/auth/token"].Requests,
		Window:   c.Config.RateLimit.EndpointOverrides["POST /api/v1/auth/token"].Window,
	}
	audit := authsvc.NewLogxAuditService()
	c.Auth = authsvc.NewService(directory, c.Tokens, c.Sessions, c.Limiter, c.Policy, audit, loginLimit, c.Log)
	logx.Info("  authentication orchestrator initialized")
}

// initJobs wires the generic job queue and registers the session cleanup
// sweep as a self-rescheduling handler.
func (c *Container) initJobs() {
	queue := jobxredis.NewRedisQueue(c.Redis)
	c.Jobs = jobx.NewClient(queue,
		jobx.WithQueues(c.Config.Jobx.Queues...),
		jobx.WithConcurrency(c.Config.Jobx.Concurrency),
		jobx.WithPollInterval(c.Config.Jobx.PollInterval),
		jobx.WithShutdownTimeout(c.Config.Jobx.ShutdownTimeout),
		jobx.WithDequeueTimeout(c.Config.Jobx.DequeueTimeout),
		jobx.WithDefaultRetryDelay(c.Config.Jobx.DefaultRetryDelay),
	)
	session.RegisterCleanupJob(c.Jobs, c.Sessions, c.Config.Session.CleanupInterval, c.Log)
	logx.Info("  job queue initialized")
}

// initGateway wires the gateway router over every collaborator above.
func (c *Container) initGateway() {
	c.Gateway = gateway.New(c.Config.Gateway, c.Config.CORS, c.Auth, c.Tokens, c.Limiter, c.Config.RateLimit, c.Log)
	c.InternalAPI = gateway.NewInternalAPI(c.Credentials, c.Prober, c.Log)
	logx.Info("  gateway router initialized")
}

// StartBackgroundServices starts the job queue (and with it, the session
// cleanup sweep) until ctx is cancelled.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("starting background services...")
	if err := session.EnqueueCleanupJob(ctx, c.Jobs, c.Config.Session.CleanupInterval); err != nil {
		logx.Errorf("failed to seed initial session cleanup sweep: %v", err)
	}
	go func() {
		if err := c.Jobs.Start(ctx); err != nil {
			logx.Errorf("job queue stopped: %v", err)
		}
	}()
}

// Cleanup releases infrastructure resources on shutdown.
func (c *Container) Cleanup() {
	logx.Info("cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("error closing database: %v", err)
		} else {
			logx.Info("  database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("error closing redis: %v", err)
		} else {
			logx.Info("  redis connection closed")
		}
	}

	logx.Info("cleanup complete")
}
