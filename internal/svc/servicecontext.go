// Package svc wires every store, domain component, and clock into a
// single ServiceContext, generalizing the teacher's `svc.ServiceContext`
// scaffolding (one struct built once at process start, threaded through
// every handler) from a single Repo/Cache pair to this repository's full
// component graph, per SPEC_FULL.md §9 "Application context".
package svc

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"golang.org/x/time/rate"

	"github.com/entativa/id/domain/audit"
	"github.com/entativa/id/domain/credential"
	"github.com/entativa/id/domain/handle"
	"github.com/entativa/id/domain/identity"
	"github.com/entativa/id/domain/mfa"
	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/domain/notify"
	"github.com/entativa/id/domain/oauth2"
	"github.com/entativa/id/domain/session"
	"github.com/entativa/id/domain/token"
	"github.com/entativa/id/internal/clock"
	"github.com/entativa/id/internal/config"
	"github.com/entativa/id/pkg/ratelimit"
	"github.com/entativa/id/store/kv"
	"github.com/entativa/id/store/postgres"
)

// ServiceContext is the fully-wired application, analogous to the
// teacher's ServiceContext but carrying every domain component this
// repository's spec names rather than one service's handlers.
type ServiceContext struct {
	Config config.Config

	Store *postgres.Store
	Cache kv.Store
	Clock clock.Clock

	Keyring *token.Keyring

	Credentials *credential.Evaluator
	Identities  *identity.Manager
	Sessions    *session.Authenticator
	Tokens      *token.Service
	Handles     *handle.Governor
	MFA         *mfa.Manager
	Audit       *audit.Recorder
	Notify      *notify.Dispatcher
	OAuth2      *oauth2.Engine
}

// otpSenderAdapter bridges notify.Dispatcher's kind/recipient/payload Sink
// shape to domain/mfa.OTPSender's narrower (method, code) shape. The
// factor's delivery target rides in SecretEnc for SMS/email factors, the
// same field domain/mfa.enrollTarget writes it into.
type otpSenderAdapter struct {
	dispatcher *notify.Dispatcher
}

func (a otpSenderAdapter) SendOTP(ctx context.Context, method *model.MFAMethod, code string) error {
	kind := notify.KindSMSOTP
	if method.Kind == model.MFAEmail {
		kind = notify.KindEmailVerification
	}
	return a.dispatcher.Send(ctx, kind, method.SecretEnc, map[string]string{"code": code})
}

// NewServiceContext builds every store and domain component from cfg. It
// panics on a failed database connection or keyring generation, matching
// the teacher's own NewServiceContext ("panic(err)" on a failed
// sqlx.Connect) since a ServiceContext that cannot reach its store has
// nothing useful left to do.
func NewServiceContext(cfg config.Config) *ServiceContext {
	logx.MustSetup(logx.LogConf{Mode: cfg.Log.Mode, Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})

	store, err := postgres.New(cfg.Database.DataSource)
	if err != nil {
		panic(err)
	}

	var cache kv.Store
	if cfg.Redis.Host != "" {
		cache = kv.NewRedisStore(redis.MustNewRedis(cfg.Redis))
	} else {
		cache = kv.NewMemory(nil)
	}

	clk := clock.Real{}

	keyring, err := token.NewKeyring()
	if err != nil {
		panic(err)
	}

	evaluator := credential.NewEvaluator(credential.NewLocalBlocklist())
	identities := identity.NewManager(store, cache, clk, cfg.Identity, evaluator)
	tokens := token.NewService(store, cache, keyring, clk, cfg.ToTokenConfig())
	sessions := session.NewAuthenticator(store, identities, tokens, cache, clk, cfg.Session, nil)
	sink := notify.LogSink{}
	limiter := ratelimit.NewLimiter(cache)
	throttle := ratelimit.NewSinkThrottle(rate.Limit(5), 10)
	dispatcher := notify.NewDispatcher(sink, limiter, throttle)
	auditRecorder := audit.NewRecorder(store, clk)
	mfaManager := mfa.NewManager(store, cache, clk, cfg.MFA, otpSenderAdapter{dispatcher: dispatcher}, auditRecorder)

	governorCtx := context.Background()
	governor, err := handle.NewGovernor(governorCtx, store, store, cache, clk)
	if err != nil {
		panic(err)
	}

	engine := oauth2.NewEngine(store, identities, tokens, cache, clk, cfg.Token.Issuer)

	return &ServiceContext{
		Config:      cfg,
		Store:       store,
		Cache:       cache,
		Clock:       clk,
		Keyring:     keyring,
		Credentials: evaluator,
		Identities:  identities,
		Sessions:    sessions,
		Tokens:      tokens,
		Handles:     governor,
		MFA:         mfaManager,
		Audit:       auditRecorder,
		Notify:      dispatcher,
		OAuth2:      engine,
	}
}
