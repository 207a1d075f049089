package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/hydrosense/droughtmap/internal/api"
	"github.com/hydrosense/droughtmap/internal/cache"
	"github.com/hydrosense/droughtmap/internal/importer"
	"github.com/hydrosense/droughtmap/internal/legacy"
	"github.com/hydrosense/droughtmap/internal/store"
	"github.com/hydrosense/droughtmap/internal/tasks"
)

type Globals struct {
	DB            string `help:"Path to the SQLite database." default:"data/droughtmap.db" env:"DROUGHTMAP_DB"`
	RedisAddr     string `help:"Redis address for the cache and task queue; empty disables both." env:"REDIS_ADDR"`
	RedisPassword string `help:"Redis password." env:"REDIS_PASSWORD"`
	RedisDB       int    `help:"Redis database number." env:"REDIS_DB"`
}

type ServeCmd struct {
	Port        string        `help:"HTTP port." default:"8080" env:"PORT"`
	UserDataDir string        `help:"Directory with legacy user-data bundles." default:"data/user_data" env:"USER_DATA_DIR"`
	CacheTTL    time.Duration `help:"Result cache TTL." default:"5m" env:"CACHE_TTL"`
	TrendCron   string        `help:"Cron schedule for the nightly trend recompute." default:"0 3 * * *" env:"TREND_CRON"`
}

type ImportCmd struct {
	DataDir   string `arg:"" help:"Directory of dataset bundles (data.csv + geoinfo.geojson)."`
	Replace   bool   `help:"Drop and rebuild each dataset instead of merging."`
	ChunkSize int    `help:"Rows per bulk-load transaction." default:"5000"`
}

type PrecomputeTrendsCmd struct {
	Dataset string `arg:"" optional:"" help:"Dataset key; all datasets when omitted."`
	Index   string `arg:"" optional:"" help:"Index name; all indices when omitted."`
}

type WorkerCmd struct {
	Concurrency int `help:"Concurrent task handlers." default:"5"`
}

var cli struct {
	Globals

	Serve            ServeCmd            `cmd:"" help:"Run the HTTP API."`
	Import           ImportCmd           `cmd:"" help:"Run the offline import pipeline."`
	PrecomputeTrends PrecomputeTrendsCmd `cmd:"" name:"precompute-trends" help:"Recompute and persist trend statistics."`
	Worker           WorkerCmd           `cmd:"" help:"Run the background task worker."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("droughtmap"),
		kong.Description("Drought-index map and time-series service."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)
	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

func openStore(g *Globals) (*store.Store, func(), error) {
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, err
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA foreign_keys=ON")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, func() { db.Close() }, nil
}

func (c *ServeCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	var fast cache.Cache
	if g.RedisAddr != "" {
		r, err := cache.NewRedis(g.RedisAddr, g.RedisPassword, g.RedisDB, 30*time.Second)
		if err != nil {
			log.Printf("redis unavailable, serving with in-process cache only: %v", err)
		} else {
			defer r.Close()
			fast = r
		}
	}
	tiered := cache.NewTiered(fast, cache.NewMemory(0))

	server := api.NewServer(st, tiered, legacy.NewLoader(c.UserDataDir), c.Port, c.CacheTTL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Run(ctx) })

	if g.RedisAddr != "" && fast != nil {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: g.RedisAddr, Password: g.RedisPassword, DB: g.RedisDB})
		defer client.Close()

		sched := cron.New()
		_, err := sched.AddFunc(c.TrendCron, func() {
			task, err := tasks.NewTrendRecomputeTask("", "")
			if err != nil {
				log.Printf("build trend recompute task: %v", err)
				return
			}
			if _, err := client.Enqueue(task); err != nil {
				log.Printf("enqueue trend recompute: %v", err)
				return
			}
			log.Printf("enqueued nightly trend recompute")
		})
		if err != nil {
			return err
		}
		sched.Start()
		group.Go(func() error {
			<-ctx.Done()
			<-sched.Stop().Done()
			return nil
		})
	}

	return group.Wait()
}

func (c *ImportCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	imp := &importer.Importer{
		Store:     st,
		DataDir:   c.DataDir,
		Replace:   c.Replace,
		ChunkSize: c.ChunkSize,
	}
	results, err := imp.Run()
	if err != nil {
		return err
	}
	for _, res := range results {
		log.Printf("%s: %d features, %d rows, %d trend stats", res.Dataset, res.Features, res.Rows, res.Trends)
	}
	return nil
}

func (c *PrecomputeTrendsCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	task, err := tasks.NewTrendRecomputeTask(c.Dataset, c.Index)
	if err != nil {
		return err
	}
	h := &tasks.Handler{Store: st}
	return h.ProcessTask(context.Background(), task)
}

func (c *WorkerCmd) Run(g *Globals) error {
	if g.RedisAddr == "" {
		log.Fatal("worker requires --redis-addr (or REDIS_ADDR)")
	}
	st, closeDB, err := openStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: g.RedisAddr, Password: g.RedisPassword, DB: g.RedisDB},
		asynq.Config{
			Concurrency: c.Concurrency,
			Queues:      map[string]int{tasks.Queue: 1},
		},
	)
	return srv.Run(tasks.NewServeMux(st))
}
