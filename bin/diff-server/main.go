package main

import (
	"colordiff/internal/codec"
	"colordiff/internal/config"
	diffimage "colordiff/internal/diff/image"
	"colordiff/internal/myhttp"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/grafana/pyroscope-go"
	pyroscopepprof "github.com/grafana/pyroscope-go/http/pprof"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/net/netutil"
	"golang.org/x/xerrors"
)

type Server struct {
	address                string
	terminationGracePeriod time.Duration
	lameduck               time.Duration
	keepAlive              bool
	maxConnections         int
	maxUploadBytes         int64
	maxMemoryBytes         int64
	quality                int
	debug                  bool
	options                diffimage.Options

	diffAmount metric.Float64Histogram
}

func NewServer() (*Server, error) {
	threshold, err := config.ParseThreshold(config.EnvOrDefault("THRESHOLD", 0))
	if err != nil {
		return nil, xerrors.Errorf("failed to parse THRESHOLD: %w", err)
	}
	alignment, err := diffimage.ParseAlignmentPolicy(config.EnvOrDefault("ALIGNMENT", diffimage.AlignPairwise.String()))
	if err != nil {
		return nil, xerrors.Errorf("failed to parse ALIGNMENT: %w", err)
	}

	return &Server{
		address:                config.EnvOrDefault("ADDRESS", "0.0.0.0:8383"),
		terminationGracePeriod: config.EnvOrDefault("TERMINATION_GRACE_PERIOD", 10*time.Second),
		lameduck:               config.EnvOrDefault("LAMEDUCK", 1*time.Second),
		keepAlive:              config.EnvOrDefault("HTTP_KEEPALIVE", true),
		maxConnections:         config.EnvOrDefault("MAX_CONNECTIONS", 65532),
		maxUploadBytes:         config.EnvOrDefault("MAX_UPLOAD_BYTES", int64(64<<20)),
		maxMemoryBytes:         config.EnvOrDefault("MAX_MEMORY_BYTES", int64(32<<20)),
		quality:                config.EnvOrDefault("JPEG_QUALITY", codec.DefaultJPEGQuality),
		debug:                  config.EnvOrDefault("DEBUG", false),
		options: diffimage.Options{
			Threshold:        threshold,
			AdjustBrightness: config.EnvOrDefault("ADJUST_BRIGHTNESS", true),
			Alignment:        alignment,
		},
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	runtime.SetMutexProfileFraction(1)
	runtime.SetBlockProfileRate(1)

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "diff-server",
		ServerAddress:   os.Getenv("PYROSCOPE_ENDPOINT"),
		UploadRate:      60 * time.Second,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
	})
	if err != nil {
		return xerrors.Errorf("failed to create profiler: %w", err)
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	r, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("diff-server")),
	)
	if err != nil {
		return xerrors.Errorf("failed to create resource: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return xerrors.Errorf("failed to create trace exporter: %w", err)
	}
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(r),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(traceProvider))

	exporter, err := otelprometheus.New()
	if err != nil {
		return xerrors.Errorf("failed to create exporter: %w", err)
	}
	// NOTE: Gauge(UpDownCounter), Summary or Untyped does not support exemplars
	// https://github.com/prometheus/client_golang/blob/v1.20.4/prometheus/metric.go#L200
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)).Meter("diff-server")

	logger, err := config.NewLogger(os.Stderr, s.debug)
	if err != nil {
		return err
	}

	handler, err := s.newHandler(logger, meter)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return xerrors.Errorf("failed to listen on address %s: %w", s.address, err)
	}

	server := &http.Server{
		Handler: handler,
	}
	server.SetKeepAlivesEnabled(s.keepAlive)

	go func() {
		if err := server.Serve(netutil.LimitListener(listener, s.maxConnections)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to serve HTTP", "error", err)
		}
	}()
	logger.Info("listening", "address", listener.Addr().String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, os.Interrupt)
	<-quit
	time.Sleep(s.lameduck)

	ctx, cancel := context.WithTimeout(ctx, s.terminationGracePeriod)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return xerrors.Errorf("failed to shutdown server: %w", err)
	}

	if err := traceProvider.Shutdown(ctx); err != nil {
		return xerrors.Errorf("failed to shutdown trace provider: %w", err)
	}

	if err := profiler.Stop(); err != nil {
		return xerrors.Errorf("failed to shutdown profiler: %w", err)
	}

	return nil
}

func (s *Server) newHandler(logger *slog.Logger, meter metric.Meter) (http.Handler, error) {
	httpRequestsDurationMicroSeconds, err := meter.Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		return nil, xerrors.Errorf("failed to create histogram: %w", err)
	}
	s.diffAmount, err = meter.Float64Histogram("diff_amount_ratio",
		metric.WithDescription("Fraction of pixels highlighted per comparison"),
		metric.WithExplicitBucketBoundaries(0, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to create histogram: %w", err)
	}

	mux := myhttp.NewServerMux(logger, httpRequestsDurationMicroSeconds)

	mux.HandleFuncWithMiddleware("POST /diff", s.handleDiff)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(http.StatusText(http.StatusOK)))
	})

	mux.Handle("GET /metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
	))

	if s.debug {
		mux.HandleFunc("GET /debug/pprof/", pprof.Index)
		mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
		mux.HandleFunc("GET /debug/pprof/profile", pyroscopepprof.Profile)
	}

	return mux, nil
}

type DiffResponse struct {
	DiffData   string  `json:"diffData"`
	DiffAmount float64 `json:"diffAmount"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	logger := myhttp.Logger(r.Context())

	if r.ContentLength > s.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, xerrors.Errorf("request body exceeds %d bytes", s.maxUploadBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(s.maxMemoryBytes); err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	options, format, err := s.parseOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	image1Data, err := formFileBytes(r, "image1")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	image2Data, err := formFileBytes(r, "image2")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	image1, _, err := codec.Decode(image1Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, xerrors.Errorf("image1: %w", err))
		return
	}
	image2, _, err := codec.Decode(image2Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, xerrors.Errorf("image2: %w", err))
		return
	}

	differ := diffimage.NewHighlightDiff(options).WithLogger(logr.FromSlogHandler(logger.Handler()))
	diffResult, err := differ.Calculate(image1, image2)
	if err != nil {
		if errors.Is(err, diffimage.ErrEmptyImage) || errors.Is(err, diffimage.ErrUnsupportedFormat) || errors.Is(err, diffimage.ErrDimensionMismatch) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		logger.Error("failed to calculate diff", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New(http.StatusText(http.StatusInternalServerError)))
		return
	}

	data, err := codec.EncodeBytes(diffResult.Image, format, codec.EncodeOptions{Quality: s.quality})
	if err != nil {
		logger.Error("failed to encode diff image", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New(http.StatusText(http.StatusInternalServerError)))
		return
	}

	s.diffAmount.Record(r.Context(), diffResult.DiffAmount, metric.WithAttributes(
		attribute.Key("format").String(string(format)),
	))
	logger.Debug("calculated diff", "diffAmount", diffResult.DiffAmount, "threshold", options.Threshold)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(DiffResponse{
		DiffData:   base64.StdEncoding.EncodeToString(data),
		DiffAmount: diffResult.DiffAmount,
		Width:      diffResult.Image.Bounds().Dx(),
		Height:     diffResult.Image.Bounds().Dy(),
	}); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// parseOptions overlays the optional form fields on the server defaults.
func (s *Server) parseOptions(r *http.Request) (diffimage.Options, codec.Format, error) {
	options := s.options
	format := codec.PNG

	if v := r.FormValue("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return options, "", xerrors.Errorf("failed to parse threshold: %w", err)
		}
		threshold, err := config.ParseThreshold(n)
		if err != nil {
			return options, "", err
		}
		options.Threshold = threshold
	}

	if v := r.FormValue("adjust_brightness"); v != "" {
		adjust, err := strconv.ParseBool(v)
		if err != nil {
			return options, "", xerrors.Errorf("failed to parse adjust_brightness: %w", err)
		}
		options.AdjustBrightness = adjust
	}

	if v := r.FormValue("alignment"); v != "" {
		alignment, err := diffimage.ParseAlignmentPolicy(v)
		if err != nil {
			return options, "", err
		}
		options.Alignment = alignment
	}

	if v := r.FormValue("format"); v != "" {
		f, err := codec.ParseFormat(v)
		if err != nil {
			return options, "", err
		}
		format = f
	}

	return options, format, nil
}

func formFileBytes(r *http.Request, name string) ([]byte, error) {
	file, _, err := r.FormFile(name)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, xerrors.Errorf("missing form file %s", name)
		}
		return nil, xerrors.Errorf("failed to read form file %s: %w", name, err)
	}
	defer func(file multipart.File) {
		_ = file.Close()
	}(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, xerrors.Errorf("failed to read form file %s: %w", name, err)
	}
	return data, nil
}

func main() {
	ctx := context.Background()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load environment: %v", err)
	}

	server, err := NewServer()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
