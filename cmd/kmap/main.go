package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-kmap/internal/client"
	"github.com/23skdu/longbow-kmap/internal/codec"
	"github.com/23skdu/longbow-kmap/internal/config"
	"github.com/23skdu/longbow-kmap/internal/trace"
)

const (
	traceFile     = "trace.bin.gz"
	kernelMapFile = "kernel_map.bin.gz"
)

var (
	configPath    = flag.String("config", "", "Path to a JSON layout configuration")
	inputPath     = flag.String("input", "", "Path to a CBOR build request")
	numPoints     = flag.Int("points", 1024, "Number of synthetic points when no input is given")
	extent        = flag.Int("extent", 32, "Half-width of the synthetic point cube")
	seed          = flag.Int64("seed", 1, "Seed for the synthetic point cloud")
	kernelSize    = flag.Int("kernel", 3, "Cube kernel size")
	stride        = flag.Int("stride", 0, "Quantization stride (0 uses the configuration)")
	tileSize      = flag.Int("tile-size", 0, "Coordinates per tile (0 uses the configuration)")
	addrWidth     = flag.Int("addr-width", 0, "Trace address width in bytes, 4 or 8 (0 uses the configuration)")
	outDir        = flag.String("out", "", "Output directory (empty uses the configuration)")
	deterministic = flag.Bool("deterministic", false, "Sort kernel map matches after lookup")
	arrowOut      = flag.Bool("arrow", false, "Write the kernel map as an Arrow IPC stream to stdout")
	serverAddr    = flag.String("server", "", "Longbow server address (e.g., localhost:3000)")
	datasetName   = flag.String("dataset", "kmap_dataset", "Target dataset name on server")
	listenAddr    = flag.String("listen", "", "Address to listen on for HTTP Server (e.g. :8080)")
	flightAddr    = flag.String("flight", "", "Address to listen on for Flight Server (e.g. :9090)")
	maxConcurrent = flag.Int("max-concurrent", 4, "Maximum number of concurrent builds")
	cacheSize     = flag.Int("cache-size", 256, "Maximum number of cached build responses")
	enableOTel    = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	cpuProfile    = flag.String("cpuprofile", "", "Write cpu profile to file")
	debug         = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	// Initialize logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := applyFlags(&cfg); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Layout.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	builder := NewBuilder(cfg)

	// Server Mode
	if *listenAddr != "" {
		var fc FlightClientInterface
		if *serverAddr != "" {
			c, err := client.NewFlightClient(*serverAddr)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create flight client")
			}
			log.Info().Str("addr", *serverAddr).Msg("Connected to Flight Server")
			fc = c
		}
		srv := NewServer(builder, fc, *datasetName, *maxConcurrent, *cacheSize)
		if *flightAddr == "" {
			startServer(*listenAddr, srv)
			return
		}
		go startServer(*listenAddr, srv)
	}

	if *flightAddr != "" {
		StartFlightServer(*flightAddr, builder)
		return
	}

	if err := runBatch(context.Background(), cfg, builder); err != nil {
		log.Fatal().Err(err).Msg("Kernel map build failed")
	}
}

// applyFlags overrides the loaded configuration with explicitly set flags.
func applyFlags(cfg *config.Config) error {
	if *stride > 0 {
		cfg.Stride = *stride
	}
	if *tileSize > 0 {
		cfg.TileSize = *tileSize
	}
	if *addrWidth > 0 {
		cfg.AddrWidth = *addrWidth
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *debug {
		cfg.Layout.Debug = true
	}
	return cfg.Validate()
}

func loadRequest() (BuildRequest, error) {
	req := BuildRequest{
		KernelSize:    *kernelSize,
		Deterministic: *deterministic,
	}
	if *inputPath == "" {
		req.Coords = syntheticCloud(*numPoints, *extent, *seed)
		log.Info().Int("points", *numPoints).Int("extent", *extent).Int64("seed", *seed).Msg("Generated synthetic point cloud")
		return req, nil
	}

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		return req, fmt.Errorf("failed to read input: %w", err)
	}
	if err := cbor.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to decode input %s: %w", *inputPath, err)
	}
	if req.KernelSize == 0 {
		req.KernelSize = *kernelSize
	}
	req.Deterministic = req.Deterministic || *deterministic
	log.Info().Str("path", *inputPath).Int("points", len(req.Coords)).Msg("Loaded build request")
	return req, nil
}

func runBatch(ctx context.Context, cfg config.Config, builder KernelMapBuilder) error {
	req, err := loadRequest()
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := builder.Build(ctx, req)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	entries := out.Trace.Entries()
	traceCRC, err := codec.WriteTrace(filepath.Join(cfg.OutputDir, traceFile), entries, cfg.AddrWidth)
	if err != nil {
		return err
	}
	kmCRC, err := codec.WriteKernelMap(filepath.Join(cfg.OutputDir, kernelMapFile), out.Result.KernelMap, out.Offsets)
	if err != nil {
		return err
	}

	summary := trace.Summarize(entries)
	log.Debug().
		Interface("by_phase", summary.ByPhase).
		Interface("by_region", summary.ByRegion).
		Float64("thread_load_mean", summary.LoadMean).
		Float64("thread_load_stddev", summary.LoadStdDev).
		Msg("Trace summary")
	log.Info().
		Int("points", len(req.Coords)).
		Int("unique", len(out.Result.Unique)).
		Int("matches", out.Result.KernelMap.Total()).
		Int("trace_entries", len(entries)).
		Str("trace_crc32", fmt.Sprintf("0x%08x", traceCRC)).
		Str("kernel_map_crc32", fmt.Sprintf("0x%08x", kmCRC)).
		Dur("elapsed", elapsed).
		Msg("Built kernel map")

	return publish(ctx, out)
}

// publish sends the kernel map to a Longbow server, or to stdout as Arrow IPC.
func publish(ctx context.Context, out *BuildOutput) error {
	if *serverAddr == "" && !*arrowOut {
		return nil
	}
	rec, err := client.NewRecordBatchBuilder(memory.NewGoAllocator()).BuildKernelMap(out.Records)
	if err != nil || rec == nil {
		return err
	}
	defer rec.Release()

	if *serverAddr == "" {
		return client.WriteStream(os.Stdout, rec)
	}

	log.Info().Int64("rows", rec.NumRows()).Str("server", *serverAddr).Str("dataset", *datasetName).Msg("Sending kernel map to Longbow")
	fc, err := client.NewFlightClient(*serverAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to Longbow: %w", err)
	}
	defer func() {
		if err := fc.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close flight client")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	return fc.DoPut(ctx, *datasetName, rec)
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("longbow-kmap"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
