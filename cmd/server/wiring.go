package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"praman/internal/did"
	enrollmenthandler "praman/internal/enrollment/handler"
	enrollmentservice "praman/internal/enrollment/service"
	enrollmentstore "praman/internal/enrollment/store"
	"praman/internal/platform/config"
	"praman/internal/platform/database"
	"praman/internal/platform/health"
	"praman/internal/platform/kafka/producer"
	"praman/internal/platform/metrics"
	"praman/internal/platform/mongo"
	"praman/internal/platform/redis"
	ratelimitmw "praman/internal/ratelimit/middleware"
	ratelimitmodels "praman/internal/ratelimit/models"
	ratelimitservice "praman/internal/ratelimit/service"
	"praman/internal/ratelimit/store/bucket"
	"praman/internal/ratelimit/workers/cleanup"
	resolverhandler "praman/internal/resolver/handler"
	resolvermodels "praman/internal/resolver/models"
	resolverservice "praman/internal/resolver/service"
	resolverstore "praman/internal/resolver/store"
	"praman/internal/resolver/tracer"
	"praman/internal/vc/adapters"
	vchandler "praman/internal/vc/handler"
	vcservice "praman/internal/vc/service"
	"praman/internal/vc/signer"
	vcstore "praman/internal/vc/store"
	"praman/migrations"
	dErrors "praman/pkg/domain-errors"
	"praman/pkg/platform/audit"
	auditmetrics "praman/pkg/platform/audit/metrics"
	"praman/pkg/platform/audit/publisher"
	"praman/pkg/platform/middleware/admin"
	"praman/pkg/platform/middleware/metadata"
	"praman/pkg/platform/middleware/request"
	"praman/pkg/platform/middleware/requesttime"
)

const (
	issuerServiceID   = "#credential-issuer"
	issuerServiceType = "CredentialIssuer"
	auditBufferSize   = 1024
	auditAttempts     = 3
	closeTimeout      = 5 * time.Second
)

type app struct {
	router    http.Handler
	issuerDID did.DID
	closers   []func()
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

type stores struct {
	registrations resolverstore.Store
	revocations   vcstore.Store
	sessions      enrollmentstore.SessionStore
	rateBuckets   bucket.Store
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	m := metrics.New()
	healthHandler := health.New(cfg.Server.Environment)

	hash, err := did.ParseHashAlgorithm(cfg.DID.Hash)
	if err != nil {
		return nil, err
	}
	deriver := did.NewDeriver(did.WithSalt(cfg.DID.Salt), did.WithHash(hash))

	st, err := buildStores(ctx, a, cfg, log, m, healthHandler)
	if err != nil {
		a.close()
		return nil, err
	}

	sink, err := buildAuditSink(ctx, a, cfg, log, healthHandler)
	if err != nil {
		a.close()
		return nil, err
	}
	auditor := publisher.NewPublisher(sink,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithRetry(auditAttempts, 200*time.Millisecond),
		publisher.WithPublisherLogger(log),
		publisher.WithMetrics(auditmetrics.New()),
	)
	a.onClose(auditor.Close)

	resolverSvc := resolverservice.NewService(st.registrations,
		resolverservice.WithLogger(log),
		resolverservice.WithTracer(tracer.NewOTel(nil)),
		resolverservice.WithAuditor(auditor),
		resolverservice.WithMetrics(m),
		resolverservice.WithDeriver(deriver),
	)

	sg, err := buildSigner(cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	issuerDID, err := bootstrapIssuer(ctx, deriver, resolverSvc, sg, cfg.Issuer.ServiceEndpoint, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.issuerDID = issuerDID

	vcSvc := vcservice.NewService(sg, issuerDID, st.revocations,
		vcservice.WithLogger(log),
		vcservice.WithAuditor(auditor),
		vcservice.WithMetrics(m),
		vcservice.WithKeyResolver(adapters.NewResolverKeyResolver(resolverSvc)),
		vcservice.WithValidity(cfg.Issuer.DefaultValidity, cfg.Issuer.MaxValidity),
	)

	enrollmentSvc := enrollmentservice.New(st.sessions, resolverSvc, deriver,
		enrollmentservice.Config{
			RPID:       cfg.Enrollment.RPID,
			RPName:     cfg.Enrollment.RPName,
			Origin:     cfg.Enrollment.RPOrigin,
			SessionTTL: cfg.Enrollment.ChallengeTTL,
		},
		enrollmentservice.WithLogger(log),
		enrollmentservice.WithAuditor(auditor),
		enrollmentservice.WithMetrics(m),
	)

	proxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}

	limit, err := buildRateLimit(cfg, log, m, st.rateBuckets)
	if err != nil {
		a.close()
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(metadata.NewMiddleware(proxies).Handler)
	r.Use(requesttime.Middleware)
	r.Use(request.Observe(log, m))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(cfg.Server.RequestTimeout))
		r.Use(request.ContentTypeJSON)
		r.Use(request.BodyLimit(cfg.Server.MaxBodyBytes))

		r.Group(func(r chi.Router) {
			r.Use(limit(ratelimitmodels.ClassDefault))
			requireAdmin := admin.RequireAdminToken(cfg.Server.AdminToken, log)
			vchandler.New(vcSvc, log).Register(r, requireAdmin)
			resolverhandler.New(resolverSvc, log).Register(r, requireAdmin)
		})
		r.Group(func(r chi.Router) {
			r.Use(limit(ratelimitmodels.ClassEnrollment))
			enrollmenthandler.New(enrollmentSvc, log).Register(r)
		})
	})

	a.router = r
	return a, nil
}

// buildStores connects the configured backend and selects the registration,
// revocation and enrollment session stores.
func buildStores(ctx context.Context, a *app, cfg config.Config, log *slog.Logger, m *metrics.Metrics, hh *health.Handler) (stores, error) {
	var st stores

	switch cfg.Store.Backend {
	case config.StorePostgres:
		pool, err := database.New(ctx, database.Config{
			URL:             cfg.Store.DatabaseURL,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		}, log)
		if err != nil {
			return st, fmt.Errorf("connect postgres: %w", err)
		}
		a.onClose(func() {
			if err := pool.Close(); err != nil {
				log.Warn("failed to close postgres pool", "error", err)
			}
		})
		if cfg.Store.AutoMigrate {
			applied, err := pool.Migrate(ctx, migrations.FS)
			if err != nil {
				return st, fmt.Errorf("migrate postgres: %w", err)
			}
			log.Info("postgres schema up to date", "applied", applied)
		}
		hh.RegisterCheck("postgres", pool.Health)
		st.registrations = resolverstore.NewPostgres(pool.DB())
		st.revocations = vcstore.NewPostgres(pool.DB())
		log.Info("using postgres stores")
	case config.StoreMongo:
		client, err := mongo.New(ctx, cfg.Mongo, log)
		if err != nil {
			return st, fmt.Errorf("connect mongodb: %w", err)
		}
		a.onClose(func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				log.Warn("failed to close mongodb client", "error", err)
			}
		})
		hh.RegisterCheck("mongodb", client.Health)
		st.registrations = resolverstore.NewMongo(client.Database())
		st.revocations = vcstore.NewMongo(client.Database())
		log.Info("using mongodb stores", "database", cfg.Mongo.Database)
	default:
		st.registrations = resolverstore.NewInMemoryStore()
		st.revocations = vcstore.NewInMemoryStore()
		log.Info("using in-memory stores")
	}

	rc, err := redis.New(ctx, cfg.Redis, log)
	if err != nil {
		return st, fmt.Errorf("connect redis: %w", err)
	}
	if rc == nil {
		st.sessions = enrollmentstore.NewInMemoryStore()
		buckets := bucket.NewInMemoryBucketStore()
		st.rateBuckets = buckets
		go cleanup.New(buckets, cleanup.WithLogger(log), cleanup.WithMetrics(m)).Start(ctx) //nolint:errcheck // returns ctx.Err on shutdown
		return st, nil
	}

	a.onClose(func() {
		if err := rc.Close(); err != nil {
			log.Warn("failed to close redis client", "error", err)
		}
	})
	hh.RegisterCheck("redis", rc.Health)
	if err := prometheus.Register(redis.NewPoolCollector(rc)); err != nil {
		log.Warn("redis pool metrics not registered", "error", err)
	}

	st.registrations = resolverstore.NewCached(st.registrations, resolverstore.NewRedisCache(rc.Client), log,
		resolverstore.WithCacheTTL(cfg.Resolver.CacheTTL),
		resolverstore.WithCacheMetrics(m),
	)
	st.sessions = enrollmentstore.NewRedis(rc.Client)
	st.rateBuckets = bucket.NewRedisBucketStore(rc.Client)
	log.Info("redis enabled", "resolver_cache_ttl", cfg.Resolver.CacheTTL)
	return st, nil
}

// buildRateLimit returns the per-class middleware factory. With rate limiting
// disabled every class passes through.
func buildRateLimit(cfg config.Config, log *slog.Logger, m *metrics.Metrics, buckets bucket.Store) (func(ratelimitmodels.EndpointClass) func(http.Handler) http.Handler, error) {
	if !cfg.RateLimit.Enabled {
		log.Info("rate limiting disabled")
		return func(ratelimitmodels.EndpointClass) func(http.Handler) http.Handler {
			return func(next http.Handler) http.Handler { return next }
		}, nil
	}

	limiter, err := ratelimitservice.New(buckets, map[ratelimitmodels.EndpointClass]ratelimitmodels.Limit{
		ratelimitmodels.ClassDefault:    {Requests: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window},
		ratelimitmodels.ClassEnrollment: {Requests: cfg.RateLimit.EnrollmentRequests, Window: cfg.RateLimit.Window},
	}, ratelimitservice.WithLogger(log), ratelimitservice.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("configure rate limiting: %w", err)
	}
	return ratelimitmw.New(limiter, log).RateLimit, nil
}

// buildAuditSink publishes audit events to Kafka when brokers are configured
// and falls back to the structured log otherwise.
func buildAuditSink(ctx context.Context, a *app, cfg config.Config, log *slog.Logger, hh *health.Handler) (audit.Sink, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka not configured, audit events go to the log")
		return audit.NewLogSink(log), nil
	}

	prod, err := producer.New(producer.ConfigFrom(cfg.Kafka), log)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	a.onClose(func() {
		if err := prod.Close(); err != nil {
			log.Warn("failed to close kafka producer", "error", err)
		}
	})
	topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err = prod.EnsureTopic(topicCtx, cfg.Kafka.AuditTopic,
		int32(cfg.Kafka.AuditPartitions), int16(cfg.Kafka.ReplicationFactor))
	if err != nil {
		// Brokers with auto-create enabled still accept the first write.
		log.Warn("failed to ensure kafka audit topic", "topic", cfg.Kafka.AuditTopic, "error", err)
	}
	hh.RegisterCheck("kafka", prod.Ping)
	log.Info("publishing audit events to kafka", "topic", cfg.Kafka.AuditTopic)
	return producer.NewAuditSink(prod, cfg.Kafka.AuditTopic), nil
}

func buildSigner(cfg config.Config, log *slog.Logger) (*signer.Signer, error) {
	var seed []byte
	if cfg.Issuer.KeySeedHex != "" {
		decoded, err := hex.DecodeString(cfg.Issuer.KeySeedHex)
		if err != nil {
			return nil, fmt.Errorf("decode ISSUER_KEY_SEED: %w", err)
		}
		seed = decoded
	} else {
		generated, err := signer.GenerateSeed()
		if err != nil {
			return nil, err
		}
		seed = generated
		log.Warn("ISSUER_KEY_SEED not set, using an ephemeral issuer key")
	}
	return signer.New(cfg.Issuer.SigningAlg, seed)
}

// bootstrapIssuer derives the issuer DID from its signing key and registers it
// so verifiers can resolve the issuer key. A DID registered by an earlier run
// is reused as is.
func bootstrapIssuer(ctx context.Context, deriver *did.Deriver, resolver *resolverservice.Service, sg *signer.Signer, endpoint string, log *slog.Logger) (did.DID, error) {
	pub := sg.PublicKey()
	issuerDID, err := deriver.DeriveBytes(pub.Bytes, did.IssuerDeviceID)
	if err != nil {
		return "", fmt.Errorf("derive issuer DID: %w", err)
	}

	_, err = resolver.Register(ctx, resolvermodels.RegisterCommand{
		DID:       issuerDID.String(),
		PublicKey: pub.Bytes,
		KeyType:   string(pub.Type),
		Services: []resolvermodels.Service{{
			ID:              issuerServiceID,
			Type:            issuerServiceType,
			ServiceEndpoint: endpoint,
		}},
	})
	switch {
	case err == nil:
		log.Info("registered issuer DID", "did", issuerDID.String())
	case dErrors.HasCode(err, dErrors.CodeConflict):
		log.Info("issuer DID already registered", "did", issuerDID.String())
	default:
		return "", fmt.Errorf("register issuer DID: %w", err)
	}
	return issuerDID, nil
}
