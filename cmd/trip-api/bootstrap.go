package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/TripBox/config"
	"github.com/BearBump/TripBox/internal/api/httpapi"
	"github.com/BearBump/TripBox/internal/broker/kafka"
	"github.com/BearBump/TripBox/internal/broker/messages"
	"github.com/BearBump/TripBox/internal/cache/rediscache"
	"github.com/BearBump/TripBox/internal/integrations/gateway"
	"github.com/BearBump/TripBox/internal/integrations/gateway/fake"
	gwhttp "github.com/BearBump/TripBox/internal/integrations/gateway/httpapi"
	"github.com/BearBump/TripBox/internal/metrics"
	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/services/aggregator"
	"github.com/BearBump/TripBox/internal/services/bookings"
	"github.com/BearBump/TripBox/internal/services/classifier"
	"github.com/BearBump/TripBox/internal/services/normalizer"
	"github.com/BearBump/TripBox/internal/services/outcomes"
	"github.com/BearBump/TripBox/internal/services/payments"
	"github.com/BearBump/TripBox/internal/services/view"
	"github.com/BearBump/TripBox/internal/storage/pgpayments"
	"github.com/redis/go-redis/v9"
)

type tripAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     tripAPIOpts
	api      *httpapi.API
	outcomes *outcomes.Service
	consumer *kafka.Consumer

	closers []func()
}

// settings are the tripbox section after defaults.
type settings struct {
	httpAddr      string
	swaggerPath   string
	topic         string
	consumerGroup string

	gatewayTimeout   time.Duration
	gatewayPerSecond float64

	bookingViewTTL time.Duration
	retries        map[models.Kind]int
	fallback       models.Kind

	countdown      time.Duration
	pollInterval   time.Duration
	grace          time.Duration
	pollsPerMinute int64
	linkTTL        time.Duration
	outcomeTTL     time.Duration
	retention      time.Duration
}

func resolveSettings(cfg *config.Config) settings {
	tb := cfg.TripBox
	s := settings{
		httpAddr:         tb.HTTPAddr,
		swaggerPath:      tb.SwaggerPath,
		topic:            cfg.Kafka.PaymentSettledTopicName,
		consumerGroup:    tb.KafkaConsumerGroup,
		gatewayTimeout:   time.Duration(tb.GatewayTimeoutSeconds) * time.Second,
		gatewayPerSecond: tb.GatewayRateLimitPerSecond,
		bookingViewTTL:   time.Duration(tb.BookingViewTTLSeconds) * time.Second,
		retries:          aggregator.DefaultRetries(),
		fallback:         models.KindUnknown,
		countdown:        time.Duration(tb.PaymentCountdownSeconds) * time.Second,
		pollInterval:     time.Duration(tb.PaymentPollIntervalSeconds) * time.Second,
		grace:            time.Duration(tb.PaymentGraceMillis) * time.Millisecond,
		pollsPerMinute:   tb.PaymentPollRateLimitPerMinute,
		linkTTL:          time.Duration(tb.PaymentLinkTTLSeconds) * time.Second,
		outcomeTTL:       time.Duration(tb.PaymentOutcomeCacheTTLSeconds) * time.Second,
		retention:        time.Duration(tb.PaymentSessionRetentionSecs) * time.Second,
	}

	if s.httpAddr == "" {
		s.httpAddr = ":8080"
	}
	if s.swaggerPath == "" {
		s.swaggerPath = os.Getenv("swaggerPath")
	}
	if s.topic == "" {
		s.topic = messages.TopicPaymentSettled
	}
	if s.consumerGroup == "" {
		s.consumerGroup = "trip-api"
	}
	if s.gatewayTimeout <= 0 {
		s.gatewayTimeout = 10 * time.Second
	}
	if s.gatewayPerSecond <= 0 {
		s.gatewayPerSecond = 20
	}
	if s.bookingViewTTL <= 0 {
		s.bookingViewTTL = time.Minute
	}
	if len(tb.SourceRetries) > 0 {
		s.retries = map[models.Kind]int{}
		for k, n := range tb.SourceRetries {
			if kind := models.ParseKind(k); kind.Known() {
				s.retries[kind] = n
			}
		}
	}
	if k := models.ParseKind(tb.UnknownKindFallback); k.Known() {
		s.fallback = k
	}
	if s.countdown <= 0 {
		s.countdown = 300 * time.Second
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 10 * time.Second
	}
	if s.grace <= 0 {
		s.grace = 1500 * time.Millisecond
	}
	if s.pollsPerMinute <= 0 {
		s.pollsPerMinute = 12
	}
	if s.linkTTL <= 0 {
		s.linkTTL = 24 * time.Hour
	}
	if s.outcomeTTL <= 0 {
		s.outcomeTTL = 10 * time.Minute
	}
	if s.retention <= 0 {
		s.retention = payments.DefaultRetention
	}
	return s
}

func newGateway(cfg *config.Config, s settings) gateway.Client {
	if cfg.TripBox.GatewayBaseURL == "" {
		slog.Warn("gateway_base_url is empty, using fake booking backend")
		return fake.New()
	}
	return gwhttp.New(cfg.TripBox.GatewayBaseURL, s.gatewayTimeout, s.gatewayPerSecond)
}

func mustBootstrapTripAPI() *tripAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	s := resolveSettings(cfg)

	app := &tripAPIApp{}
	reg := metrics.NewRegistry()
	gw := newGateway(cfg, s)

	cls := classifier.New(nil, s.fallback)
	norm := normalizer.New().
		WithClassifier(cls).
		WithURLFixer(normalizer.PublicURLFixer(cfg.TripBox.PublicBaseURL)).
		WithPlaceholder(cfg.TripBox.ImagePlaceholderURL)
	agg := aggregator.New(gw, norm).WithRetries(s.retries).WithMetrics(reg)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	// кэш и лимитер работают через один пул соединений
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	rc := rediscache.NewWithClient(redisClient)
	rl := rediscache.NewRateLimiterWithClient(redisClient)
	app.closers = append(app.closers, func() { _ = rc.Close() })

	bk := bookings.New(agg, rc, s.bookingViewTTL).
		WithBuilder(view.NewBuilder(cls)).
		WithMetrics(reg)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	app.closers = append(app.closers, func() { _ = producer.Close() })

	pays := payments.New(gw, rc, rl, producer).
		WithSettings(s.countdown, s.pollInterval, s.grace, s.pollsPerMinute, s.linkTTL).
		WithRetention(s.retention).
		WithTopic(s.topic).
		WithMetrics(reg)
	app.closers = append(app.closers, pays.Shutdown)

	// без БД журнал исходов выключен, но сессии оплаты работают
	var oc httpapi.OutcomesService
	if conn := cfg.Database.ConnString(); conn != "" {
		st := mustOpenPostgresWithRetry(conn, 60*time.Second)
		app.closers = append(app.closers, st.Close)
		app.outcomes = outcomes.New(st, rc, s.outcomeTTL)
		app.consumer = kafka.NewConsumer(brokers, s.topic, s.consumerGroup)
		app.closers = append(app.closers, func() { _ = app.consumer.Close() })
		oc = app.outcomes
	} else {
		slog.Warn("database is not configured, payment outcome ledger disabled")
	}

	app.api = httpapi.New(bk, pays, oc).
		WithMetrics(reg.Handler()).
		WithSwagger(s.swaggerPath).
		WithHealthCheck(rc.Ping)

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.opts = tripAPIOpts{
		httpAddr:      s.httpAddr,
		swaggerPath:   s.swaggerPath,
		topic:         s.topic,
		consumerGroup: s.consumerGroup,
	}
	return app
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgpayments.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgpayments.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

// Close releases resources in reverse order of acquisition.
func (a *tripAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *tripAPIApp) Run() error {
	var consumer kafkaConsumer
	var applier settledApplier
	if a.consumer != nil && a.outcomes != nil {
		consumer = a.consumer
		applier = a.outcomes
	}
	return runTripAPI(a.ctx, a.opts, a.api, applier, consumer)
}
