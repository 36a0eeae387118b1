package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/recstore/internal/relay"
	"github.com/roach88/recstore/pkg/recstore"
)

// Options translates the file into Open options. The relay is not included;
// see Sinks.
func (c *Config) Options(logger *slog.Logger) []recstore.Option {
	opts := []recstore.Option{recstore.WithLogger(logger)}

	db := c.Database
	if db.JournalMode != "" {
		opts = append(opts, recstore.WithJournalMode(db.JournalMode))
	}
	if db.Synchronous != "" {
		opts = append(opts, recstore.WithSynchronous(db.Synchronous))
	}
	if db.BusyTimeout > 0 {
		opts = append(opts, recstore.WithBusyTimeout(db.BusyTimeout))
	}
	if db.ForeignKeys != nil {
		opts = append(opts, recstore.WithForeignKeys(*db.ForeignKeys))
	}
	if len(db.Pragmas) > 0 {
		opts = append(opts, recstore.WithPragmas(db.Pragmas...))
	}

	if c.Strict {
		opts = append(opts, recstore.WithStrictEncoding())
	}
	if c.AutoSnapshot {
		opts = append(opts, recstore.WithAutoSnapshot())
	}

	switch c.Notifier {
	case NotifierLogging:
		opts = append(opts, recstore.WithUpdateHook(recstore.LoggingHook(logger)))
	case NotifierDebug:
		opts = append(opts, recstore.WithUpdateHook(recstore.DebugHook(logger)))
	}
	if c.Authorizer == AuthorizerTruncateGuard {
		opts = append(opts, recstore.WithAuthorizer(recstore.TruncateGuard))
	}
	return opts
}

// Sinks connects every configured relay sink. On error the sinks already
// connected are closed.
func (c *Config) Sinks(ctx context.Context, logger *slog.Logger) ([]relay.Sink, error) {
	if c.Relay == nil {
		return nil, nil
	}
	var sinks []relay.Sink
	fail := func(err error) ([]relay.Sink, error) {
		errs := multierror.Append(new(multierror.Error), err)
		for _, s := range sinks {
			if cerr := s.Close(); cerr != nil {
				errs = multierror.Append(errs, cerr)
			}
		}
		return nil, errs.ErrorOrNil()
	}

	if c.Relay.Log {
		sinks = append(sinks, relay.NewLogSink(logger, slog.LevelInfo))
	}
	if r := c.Relay.Redis; r != nil {
		sink, err := relay.DialRedis(ctx, relay.RedisConfig{
			Addr:        r.Addr,
			Password:    r.Password,
			DB:          r.DB,
			Channel:     r.Channel,
			DialTimeout: r.DialTimeout,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, sink)
	}
	if k := c.Relay.Kafka; k != nil {
		w, err := relay.NewKafkaWriter(relay.KafkaConfig{
			Brokers:      k.Brokers,
			Topic:        k.Topic,
			BatchTimeout: k.BatchTimeout,
			WriteTimeout: k.WriteTimeout,
			RequiredAcks: k.RequiredAcks,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, relay.NewKafkaSink(w, k.Topic))
	}
	return sinks, nil
}

// Open opens the configured database, connecting the relay first when one is
// configured. extra options are applied last.
func (c *Config) Open(ctx context.Context, logger *slog.Logger, extra ...recstore.Option) (*recstore.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := c.Options(logger)

	sinks, err := c.Sinks(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	if len(sinks) > 0 {
		r := relay.New(relay.Options{
			Buffer: c.Relay.Buffer,
			Rate:   c.Relay.Rate,
			Burst:  c.Relay.Burst,
			Logger: logger,
		}, sinks...)
		opts = append(opts, recstore.WithRelay(r))
		defer func() {
			if err != nil {
				r.Close()
			}
		}()
	}
	opts = append(opts, extra...)

	db, err := recstore.OpenContext(ctx, c.Database.Path, opts...)
	if err != nil {
		return nil, err
	}
	if c.Notifier == NotifierOff {
		if err = db.RemoveUpdateHook(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}
