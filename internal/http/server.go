package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"zeropay.com/internal/core/matcher"
	"zeropay.com/internal/core/x402"
	"zeropay.com/internal/domain"
	"zeropay.com/internal/infra/persistence"
	"zeropay.com/pkg/middleware"
	"zeropay.com/pkg/ratelimit"
)

// Server 商户 API
type Server struct {
	merchants   domain.MerchantRepo
	sessions    domain.SessionRepo
	custRepo    domain.CustomerRepo
	customers   *matcher.CustomerService
	matcher     *matcher.Matcher
	facilitator *x402.Facilitator
	nonces      *NonceStore
	secret      []byte
	newApikey   func() string
}

func NewServer(merchants domain.MerchantRepo, sessions domain.SessionRepo,
	custRepo domain.CustomerRepo, customers *matcher.CustomerService,
	m *matcher.Matcher, facilitator *x402.Facilitator, secret []byte) *Server {
	return &Server{
		merchants:   merchants,
		sessions:    sessions,
		custRepo:    custRepo,
		customers:   customers,
		matcher:     m,
		facilitator: facilitator,
		nonces:      NewNonceStore(),
		secret:      secret,
		newApikey:   persistence.GenerateApikey,
	}
}

// Router 组装 gin
func (s *Server) Router(ctx context.Context) *gin.Engine {
	// 限流
	store := ratelimit.NewStore(100, 200, 10*time.Minute)
	store.StartJanitor(ctx, time.Minute)
	s.nonces.StartJanitor(ctx)

	// 监控
	r := gin.New()
	p := ginprom.NewPrometheus("zeropay")
	p.Use(r)
	r.Use(
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
		middleware.RateLimit(store),
	)

	// 商户 API，apikey 鉴权
	api := r.Group("/", s.ApikeyAuth())
	{
		api.POST("/sessions", s.CreateSession)
		api.GET("/sessions/:id", s.GetSession)
		api.POST("/x402/requirements", s.X402Requirements)
		api.POST("/x402/payments", s.X402Payment)
	}

	// 公开的协议探测接口
	r.GET("/x402/support", s.X402Support)
	r.GET("/x402/discovery", s.X402Discovery)

	// 商户控制台：钱包登录 + JWT
	r.GET("/api/nonce", s.GetNonce)
	r.POST("/api/login", s.Login)
	console := r.Group("/api/merchants", s.JwtAuth())
	{
		console.POST("/info", s.UpdateInfo)
		console.POST("/apikey", s.UpdateApikey)
	}

	return r
}

// NewHTTPServer 带超时配置的 http.Server
func (s *Server) NewHTTPServer(ctx context.Context, addr string) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        s.Router(ctx),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   120 * time.Second, // x402 结算要等链上确认
		MaxHeaderBytes: 1 << 20,
	}
}
