package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-kmap/internal/cache"
	"github.com/23skdu/longbow-kmap/internal/client"
	"github.com/23skdu/longbow-kmap/internal/kmap"
)

const maxRequestBytes = 64 << 20

type FlightClientInterface interface {
	DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error
	Close() error
}

type Server struct {
	builder      KernelMapBuilder
	flightClient FlightClientInterface
	datasetName  string
	batches      *client.RecordBatchBuilder
	cache        cache.ResponseCache
	sem          *semaphore.Weighted
}

func NewServer(builder KernelMapBuilder, fc FlightClientInterface, dataset string, maxConcurrent, cacheSize int) *Server {
	return &Server{
		builder:      builder,
		flightClient: fc,
		datasetName:  dataset,
		batches:      client.NewRecordBatchBuilder(memory.NewGoAllocator()),
		cache:        cache.NewMapCache(cacheSize),
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/kmap", s.handleBuild)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func startServer(addr string, srv *Server) {
	log.Info().Str("addr", addr).Msg("Starting kernel map server")
	if srv.flightClient != nil {
		log.Info().Str("dataset", srv.datasetName).Msg("Forwarding kernel maps to Flight server")
	}

	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

var tracer = otel.Tracer("longbow-kmap-server")

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleBuild")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (read): %v", err), http.StatusBadRequest)
		return
	}

	key := cache.Key(body)
	if resp, ok := s.cache.Get(key); ok {
		cacheHits.Inc()
		span.SetAttributes(attribute.Bool("cache_hit", true))
		writeCBOR(w, resp)
		return
	}
	cacheMisses.Inc()

	var req BuildRequest
	if err := cbor.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.Int("coord_count", len(req.Coords)),
		attribute.Int("offset_count", len(req.Offsets)),
	)

	// Admission Control
	if err := s.sem.Acquire(ctx, 1); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}
	defer s.sem.Release(1)

	out, err := s.builder.Build(ctx, req)
	if err != nil {
		span.RecordError(err)
		buildsTotal.WithLabelValues("error").Inc()
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, kmap.ErrNoOffsets):
			status = http.StatusBadRequest
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	buildsTotal.WithLabelValues("ok").Inc()

	resp, err := out.Response()
	if err != nil {
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := cbor.Marshal(resp)
	if err != nil {
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.cache.Put(key, data)

	if s.flightClient != nil {
		if err := s.forward(ctx, out); err != nil {
			log.Error().Err(err).Msg("Error forwarding kernel map")
		}
	}

	writeCBOR(w, data)
}

func (s *Server) forward(ctx context.Context, out *BuildOutput) error {
	rec, err := s.batches.BuildKernelMap(out.Records)
	if err != nil || rec == nil {
		return err
	}
	defer rec.Release()
	return s.flightClient.DoPut(ctx, s.datasetName, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeCBOR(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
