package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olivere/elastic/v7"
	"go.uber.org/zap"

	"github.com/openfacet/facetd/internal/config"
	dbRedis "github.com/openfacet/facetd/internal/db/redis"
	"github.com/openfacet/facetd/internal/domain/column"
	"github.com/openfacet/facetd/internal/domain/facet"
	"github.com/openfacet/facetd/internal/domain/schema"
	logpkg "github.com/openfacet/facetd/internal/logger"
	"github.com/openfacet/facetd/internal/metrics"
	indexrepo "github.com/openfacet/facetd/internal/repository/index"
	savedsearchrepo "github.com/openfacet/facetd/internal/repository/savedsearch"
	chiTransport "github.com/openfacet/facetd/internal/transport/chi"
	exportuc "github.com/openfacet/facetd/internal/usecase/export"
	healthuc "github.com/openfacet/facetd/internal/usecase/health"
	saveduc "github.com/openfacet/facetd/internal/usecase/saved"
	searchuc "github.com/openfacet/facetd/internal/usecase/search"
	"github.com/openfacet/facetd/internal/version"
)

func runServe() error {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting facetd API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("es_urls", cfg.Elasticsearch.URLs),
		zap.String("index", cfg.Elasticsearch.Index),
	)

	esOpts := []elastic.ClientOptionFunc{
		elastic.SetURL(cfg.Elasticsearch.URLs...),
		elastic.SetSniff(cfg.Elasticsearch.Sniff),
	}
	if cfg.Elasticsearch.Username != "" {
		esOpts = append(esOpts, elastic.SetBasicAuth(cfg.Elasticsearch.Username, cfg.Elasticsearch.Password))
	}
	client, err := elastic.NewClient(esOpts...)
	if err != nil {
		return fmt.Errorf("connect elasticsearch: %w", err)
	}

	ctx := context.Background()
	indexRepo := indexrepo.New(client, cfg.Elasticsearch.Index)

	// The index mapping drives labels, sort keys, and highlight targets;
	// fetched once at startup.
	props, err := indexRepo.Mapping(ctx)
	if err != nil {
		return fmt.Errorf("fetch index mapping: %w", err)
	}
	mapping, err := schema.ParseMapping(props)
	if err != nil {
		return fmt.Errorf("parse index mapping: %w", err)
	}
	intros := schema.NewIntrospector(mapping, schema.Overrides{
		Labels:     cfg.Schema.Labels,
		SortKeys:   cfg.Schema.SortKeys,
		Highlights: cfg.Schema.Highlights,
		Searchable: cfg.Schema.Searchable,
	}, cfg.Schema.DefaultAnalyzer)
	logger.Info("Schema introspected", zap.Int("fields", len(mapping.FieldNames())))

	facets, initialFacets := buildFacets(cfg.Facets, intros)

	cache, err := column.NewFormatterCache(cfg.Search.FormatterCacheSize)
	if err != nil {
		return fmt.Errorf("create formatter cache: %w", err)
	}
	resolver := column.NewResolver(intros, mapping, columnOptions(cfg.Columns, intros), cache)

	searchSvc := searchuc.New(indexRepo, intros, facets, resolver, searchuc.Config{
		PageSize:         cfg.Search.PageSize,
		DefaultOperator:  cfg.Search.DefaultOperator,
		QueryType:        cfg.Search.QueryType,
		DefaultSorts:     cfg.Search.DefaultSorts,
		DefaultDisplay:   cfg.Search.DefaultDisplay,
		InitialFacets:    initialFacets,
		HighlightEnabled: cfg.Search.HighlightEnabled,
		HighlightFields:  cfg.Search.HighlightFields,
		HighlightEncoder: cfg.Search.HighlightEncoder,
	})
	exportSvc := exportuc.New(indexRepo, resolver, cfg.Search.ExportName)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("create saved-search store: %w", err)
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("saved-search store not ready: %w", err)
	}
	logger.Info("Connected to saved-search store")

	savedSvc := saveduc.New(savedsearchrepo.New(store))
	healthSvc := healthuc.New(indexRepo, store)

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	server := chiTransport.NewServer(searchSvc, exportSvc, savedSvc, healthSvc, logger)
	router := server.Router(cfg.Auth.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		// Long enough for a full CSV export to stream out.
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// buildFacets assembles the facet set and the initial-selection map from
// configuration. Labels left empty derive from the schema.
func buildFacets(configs []config.FacetConfig, intros *schema.Introspector) (*facet.Set, map[string][]string) {
	facets := make([]facet.Facet, 0, len(configs))
	initial := make(map[string][]string)

	for _, fc := range configs {
		label := fc.Label
		if label == "" {
			label = intros.Label(fc.Field)
		}

		var f facet.Facet
		switch fc.Kind {
		case "range":
			ranges := make([]facet.Range, len(fc.Ranges))
			for i, rc := range fc.Ranges {
				ranges[i] = facet.Range{Key: rc.Key, From: rc.From, To: rc.To}
			}
			f = facet.NewRange(fc.Field, label, ranges)
		case "date_histogram":
			interval := facet.Interval(fc.Interval)
			if fc.Interval == "" {
				interval = facet.Monthly
			}
			f = facet.NewDateHistogram(fc.Field, label, interval)
		default:
			t := facet.NewTerms(fc.Field, label)
			if fc.Size > 0 {
				t = t.WithSize(fc.Size)
			}
			f = t
		}
		facets = append(facets, f)

		if len(fc.Initial) > 0 {
			initial[fc.Field] = fc.Initial
		}
	}

	return facet.NewSet(facets...), initial
}

// columnOptions translates the columns configuration into resolver options.
// Schema-derived defaults fill whatever the config leaves empty.
func columnOptions(cfg config.ColumnsConfig, intros *schema.Introspector) column.Options {
	opts := column.Options{Exclude: cfg.Exclude}

	for _, cc := range cfg.Fields {
		col := column.Column{
			Field:       cc.Field,
			Label:       cc.Label,
			SortKey:     cc.SortKey,
			Highlight:   cc.Highlight,
			ExportField: cc.ExportField,
			Export:      true,
		}
		if cc.Export != nil {
			col.Export = *cc.Export
		}
		if col.Label == "" {
			col.Label = intros.Label(cc.Field)
		}
		if cc.Label == "" && cc.SortKey == "" && cc.Highlight == "" && cc.ExportField == "" {
			col.SortKey = intros.SortKey(cc.Field)
			col.Highlight = intros.HighlightTarget(cc.Field)
		}
		opts.Columns = append(opts.Columns, col)
	}

	for _, rc := range cfg.Required {
		opts.Required = append(opts.Required, column.Required{Field: rc.Field, Position: rc.Position})
	}
	return opts
}
