package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/TripBox/internal/api/httpapi"
	"github.com/BearBump/TripBox/internal/broker/messages"
)

type tripAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type settledApplier interface {
	ApplyKafkaSettled(ctx context.Context, msg messages.PaymentSettled) error
}

func runTripAPI(ctx context.Context, opts tripAPIOpts, api *httpapi.API, applier settledApplier, consumer kafkaConsumer) error {
	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
			return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
		}
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, api.Router())
	}()

	if consumer != nil && applier != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			if err := consumer.Consume(ctx, settledHandler(ctx, applier)); err != nil && ctx.Err() == nil {
				slog.Error("kafka consumer stopped", "error", err.Error())
			}
		}()
	}

	select {
	case <-ctx.Done():
		<-httpErr
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// settledHandler stores settled payments. A message that cannot be decoded is logged and skipped:
// returning an error would stop the consumer on it forever.
func settledHandler(ctx context.Context, applier settledApplier) func(key, value []byte) error {
	return func(_key, value []byte) error {
		var m messages.PaymentSettled
		if err := json.Unmarshal(value, &m); err != nil {
			slog.Error("skip malformed payment.settled", "error", err.Error())
			return nil
		}
		return applier.ApplyKafkaSettled(ctx, m)
	}
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
