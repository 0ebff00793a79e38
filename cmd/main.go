package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/scenequery/featureflag"
	scenehttp "github.com/aukilabs/scenequery/http"
	"github.com/aukilabs/scenequery/models"
	"github.com/aukilabs/scenequery/pruner"
	"github.com/aukilabs/scenequery/smoketest"
	scenewebsocket "github.com/aukilabs/scenequery/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The scenequery version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "scenequery_info",
		Help:        "Scenequery information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"SCENEQUERY_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"SCENEQUERY_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"SCENEQUERY_PUBLIC_ENDPOINT"      help:"The public endpoint where this server is reachable."`
	ServerID           string        `cli:""        env:"SCENEQUERY_SERVER_ID"            help:"The id prefixing the global scene ids."`
	LogLevel           string        `cli:""        env:"SCENEQUERY_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"SCENEQUERY_LOG_INDENT"           help:"Indent logs."`
	SyncClockInterval  time.Duration `cli:",hidden" env:"SCENEQUERY_SYNC_CLOCK_INTERVAL"  help:"Client sync clock (heartbeat) message interval."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"SCENEQUERY_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected"`
	FrameDuration      time.Duration `cli:",hidden" env:"SCENEQUERY_FRAME_DURATION"       help:"The duration of a scene frame."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"SCENEQUERY_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Pruner             prunerConfig  `cli:",hidden" env:"-"                               help:"Scene pruner configuration."`
	Events             eventsConfig  `cli:",hidden" env:"-"                               help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"SCENEQUERY_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                               help:"Show version."`
	Help               bool          `cli:""        env:"-"                               help:"Show help."`
}

type prunerConfig struct {
	ReorderThreshold int `cli:",hidden" env:"SCENEQUERY_PRUNER_REORDER_THRESHOLD" help:"The number of objects under a node from which its children are visited closest first."`
	MaxObjects       int `cli:",hidden" env:"SCENEQUERY_PRUNER_MAX_OBJECTS"       help:"The maximum number of objects in a scene. 0 means no limit."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"SCENEQUERY_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"SCENEQUERY_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"SCENEQUERY_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"SCENEQUERY_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		ServerID:           "sq",
		LogLevel:           logs.InfoLevel.String(),
		SyncClockInterval:  time.Second * 5,
		ClientIdleTimeout:  time.Minute * 5,
		FrameDuration:      time.Millisecond * 15,
		LogSummaryInterval: time.Minute,
		Pruner: prunerConfig{
			ReorderThreshold: pruner.DefaultReorderThreshold,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the scene query server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "scenequery",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	prunerOptions := pruner.Options{
		ReorderThreshold: conf.Pruner.ReorderThreshold,
		MaxObjects:       conf.Pruner.MaxObjects,
	}
	featureFlags.ApplyPrunerOptions(&prunerOptions)

	scenes := models.SceneStore{
		ServerID: conf.ServerID,
		SceneOptions: models.SceneOptions{
			FrameDuration:      conf.FrameDuration,
			DisableFrameCommit: featureFlags.IsSet(featureflag.FlagDisableFrameCommit),
			Pruner:             prunerOptions,
		},
	}
	defer scenes.Close()

	var service http.ServeMux

	service.Handle("/health", scenehttp.HandleWithCORS(http.HandlerFunc(scenehttp.HandleHealthCheck)))
	service.Handle("/version", scenehttp.HandleWithCORS(http.HandlerFunc(scenehttp.HandleVersion(version))))

	sceneHandler := scenehttp.SceneHandler{Scenes: &scenes}
	sceneHandler.Register(&service)

	featureFlags.IfNotSet(featureflag.FlagDisableSmokeTestHandler, func() {
		service.Handle("POST /smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
			Pruner:     prunerOptions,
			MaxObjects: conf.Pruner.MaxObjects,
			SendResult: func(ctx context.Context, res smoketest.Result) error {
				logs.WithTag("seed", res.Seed).
					WithTag("rounds", res.Rounds).
					WithTag("queries", res.Queries).
					WithTag("hits", res.Hits).
					WithTag("duration", res.Duration).
					WithTag("error", res.Error).
					Info("smoke test finished")
				return nil
			},
		}))
	})

	readinessCheck := func() bool {
		return ctx.Err() == nil
	}
	service.Handle("/ready", scenehttp.HandleWithCORS(http.HandlerFunc(scenehttp.HandleReadyCheck(readinessCheck))))

	service.Handle("/ws", scenehttp.HandleWithCORS(websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var h scenewebsocket.Handler = &scenewebsocket.SceneHandler{
				ClientSyncClockInterval: conf.SyncClockInterval,
				ClientIdleTimeout:       conf.ClientIdleTimeout,
				Scenes:                  &scenes,
				FeatureFlags:            featureFlags,
			}
			h = scenewebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
			h = scenewebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			scenewebsocket.Handle(ctx, conn, h)
		},
	}))

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", scenehttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", scenehttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("server_id", conf.ServerID).
		WithTag("feature_flags", featureFlags.Strings()).
		Info("starting scenequery server")

	scenehttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			scenehttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.ServerID == "" {
		return errors.New("server id is empty")
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.Pruner.MaxObjects < 0 {
		return errors.New("max objects must not be negative").
			WithTag("max_objects", conf.Pruner.MaxObjects)
	}
	return nil
}
