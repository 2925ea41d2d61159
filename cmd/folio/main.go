// folio runs the entity store REST server.
//
// Settings come from a TOML file given with --config, and any flag given on
// the command line overrides the file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	raven "github.com/getsentry/raven-go"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ndlib/folio/blobcache"
	"github.com/ndlib/folio/bundle"
	"github.com/ndlib/folio/config"
	"github.com/ndlib/folio/entity"
	"github.com/ndlib/folio/server"
	"github.com/ndlib/folio/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("folio", pflag.ContinueOnError)
	configFile := flags.String("config", "", "path to the TOML configuration file")
	listen := flags.String("listen", "", "address to listen on")
	location := flags.String("location", "", "object store location (path, file:, s3:, bolt:)")
	cacheDir := flags.String("cache-dir", "", "directory for last-known-good bundle copies")
	tokens := flags.String("tokens", "", "file of API tokens")
	level := flags.String("log-level", "", "debug, info, warn or error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	c, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if flags.Changed("listen") {
		c.Listen = *listen
	}
	if flags.Changed("location") {
		c.Location = *location
	}
	if flags.Changed("cache-dir") {
		c.CacheDir = *cacheDir
	}
	if flags.Changed("tokens") {
		c.Tokens = *tokens
	}
	if flags.Changed("log-level") {
		c.LogLevel = *level
	}
	if err := c.Check(); err != nil {
		return err
	}

	log, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if c.SentryDSN != "" {
		if err := raven.SetDSN(c.SentryDSN); err != nil {
			return err
		}
		raven.SetRelease(server.Version)
	}

	s, err := newServer(c, log)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		if err := s.Stop(); err != nil {
			log.Error("stop", zap.Error(err))
		}
	}()
	return s.Run()
}

func newLogger(c config.Config) (*zap.Logger, error) {
	l, err := c.Level()
	if err != nil {
		return nil, err
	}
	return zap.Config{
		Encoding:         "json",
		Level:            zap.NewAtomicLevelAt(l),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}.Build()
}

// newServer wires the stores, the bundle builder and the cache together.
func newServer(c config.Config, log *zap.Logger) (*server.RESTServer, error) {
	objects, err := store.Open(c.Location, "")
	if err != nil {
		return nil, err
	}
	if c.DebugStore {
		objects = store.NewLogger(log, objects)
	}
	log.Info("object store", zap.String("location", c.Location))

	entities := entity.New(objects)
	entities.Log = log.Named("entity")
	builder := bundle.NewBuilder(entities, objects)
	builder.Log = log.Named("bundle")
	entities.Invalidator = builder

	var cache blobcache.Cache = blobcache.EmptyCache{}
	if c.CacheSize > 0 {
		cs, err := store.Open(c.CacheDir, "blobcache")
		if err != nil {
			return nil, err
		}
		lru := blobcache.New(cs, c.CacheSize)
		go func() {
			if err := lru.Scan(context.Background()); err != nil {
				log.Error("scanning blob cache", zap.Error(err))
			}
		}()
		cache = lru
	} else {
		log.Info("not using blob cache")
	}
	reader := bundle.NewReader(builder, objects, cache)
	reader.Log = log.Named("reader")

	var decoder server.TokenDecoder
	if c.Tokens != "" {
		decoder, err = server.NewListDecoderFile(c.Tokens)
		if err != nil {
			return nil, err
		}
	}

	return &server.RESTServer{
		Listen:      c.Listen,
		Entities:    entities,
		Builder:     builder,
		Reader:      reader,
		Decoder:     decoder,
		Log:         log.Named("server"),
		CORSOrigins: c.CORS,
		MaxRebuilds: c.MaxRebuilds,
	}, nil
}
