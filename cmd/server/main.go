package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"realmstate.ai/internal/persistence/archive"
	"realmstate.ai/internal/persistence/indexdb"
	persistlog "realmstate.ai/internal/persistence/log"
	"realmstate.ai/internal/persistence/snapshot"
	"realmstate.ai/internal/sim/tuning"
	"realmstate.ai/internal/sim/world"
	"realmstate.ai/internal/sim/worldgen"
	"realmstate.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "realm_1", "world id")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		schemaDir  = flag.String("schemas", "./schemas", "json schema directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite event index")

		genWidth    = flag.Int("gen_width", 8, "fresh world: POI grid width")
		genHeight   = flag.Int("gen_height", 8, "fresh world: POI grid height")
		genFactions = flag.Int("gen_factions", 4, "fresh world: starting factions")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		p, err := snapshot.Latest(filepath.Join(worldDir, "snapshots"), *worldID)
		if err != nil {
			logger.Fatalf("scan snapshots: %v", err)
		}
		snapshotToLoad = p
	}

	var w *world.World
	if snapshotToLoad != "" {
		snap, err := snapshot.Read(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		w, err = world.New(world.WorldConfig{
			ID:                 *worldID,
			TickRateHz:         snap.TickRate,
			DayTicks:           snap.DayTicks,
			SnapshotEveryTicks: snap.SnapshotEveryTicks,
			Seed:               snap.Seed,
		}, tune)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	} else {
		w, err = world.New(world.WorldConfig{
			ID:                 *worldID,
			TickRateHz:         tune.TickRateHz,
			DayTicks:           tune.DayTicks,
			SnapshotEveryTicks: tune.SnapshotEveryTicks,
			Seed:               *seed,
		}, tune)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		res := worldgen.Generate(worldgen.GenConfig{
			Width:        *genWidth,
			Height:       *genHeight,
			Seed:         *seed,
			Factions:     *genFactions,
			ResidentsMax: worldgen.DefaultGenConfig().ResidentsMax,
		})
		if err := w.SeedFrom(res); err != nil {
			logger.Fatalf("seed world: %v", err)
		}
		logger.Printf("generated fresh world seed=%d pois=%d npcs=%d factions=%d",
			res.Seed, len(res.POIs), len(res.NPCs), len(res.Factions))
	}

	ctx, cancel := signalContext()
	defer cancel()

	mirror, err := buildMirrorRuntime(*dataDir, logger)
	if err != nil {
		logger.Fatalf("mirror: %v", err)
	}
	defer mirror.Close()

	eventLog := persistlog.NewEventLogger(worldDir)
	defer eventLog.Close()
	w.AddEventWriter(eventLog)
	if idx != nil {
		w.AddEventWriter(idx)
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := snapshot.Path(filepath.Join(worldDir, "snapshots"), snap.Header.WorldID, snap.Header.Tick)
				if err := snapshot.Write(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
				mirror.Enqueue(path)
				logger.Printf("snapshot written tick=%d", snap.Header.Tick)

				if day, archivedPath, ok, err := archive.ArchiveDaySnapshot(worldDir, path, snap); err != nil {
					logger.Printf("day archive: %v", err)
				} else if ok {
					mirror.Enqueue(archivedPath)
					logger.Printf("archived day=%d snapshot=%s", day, filepath.Base(archivedPath))
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	wsSrv := ws.NewServer(w, logger)
	cmdSchemaPath := filepath.Join(*schemaDir, "cmd.schema.json")
	if err := wsSrv.LoadCmdSchema(cmdSchemaPath); err != nil {
		if os.IsNotExist(err) {
			logger.Printf("cmd schema not found (%s); boundary validation disabled", cmdSchemaPath)
		} else {
			logger.Fatalf("load cmd schema: %v", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP realmstate_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE realmstate_world_tick gauge\n")
		fmt.Fprintf(rw, "realmstate_world_tick{world=%q} %d\n", *worldID, m.Tick)

		fmt.Fprintf(rw, "# HELP realmstate_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE realmstate_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "realmstate_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "inbox", m.InboxDepth)
		fmt.Fprintf(rw, "realmstate_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "join", m.JoinDepth)
		fmt.Fprintf(rw, "realmstate_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "leave", m.LeaveDepth)

		if idx != nil {
			s := idx.Stats()
			fmt.Fprintf(rw, "# HELP realmstate_index_queue_depth Index write-behind queue depth.\n")
			fmt.Fprintf(rw, "# TYPE realmstate_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "realmstate_index_queue_depth{world=%q} %d\n", *worldID, s.QueueDepth)

			fmt.Fprintf(rw, "# HELP realmstate_index_dropped_total Events dropped by the index under backpressure.\n")
			fmt.Fprintf(rw, "# TYPE realmstate_index_dropped_total counter\n")
			fmt.Fprintf(rw, "realmstate_index_dropped_total{world=%q,kind=%q} %d\n", *worldID, "event", s.DropEventTotal)
			fmt.Fprintf(rw, "realmstate_index_dropped_total{world=%q,kind=%q} %d\n", *worldID, "snapshot", s.DropSnapshotTotal)
		}

		if ms, ok := mirror.Stats(); ok {
			fmt.Fprintf(rw, "# HELP realmstate_mirror_uploads_total Mirror upload attempts by outcome.\n")
			fmt.Fprintf(rw, "# TYPE realmstate_mirror_uploads_total counter\n")
			fmt.Fprintf(rw, "realmstate_mirror_uploads_total{world=%q,outcome=%q} %d\n", *worldID, "success", ms.UploadSuccessTotal)
			fmt.Fprintf(rw, "realmstate_mirror_uploads_total{world=%q,outcome=%q} %d\n", *worldID, "fail", ms.UploadFailTotal)
			fmt.Fprintf(rw, "realmstate_mirror_uploads_total{world=%q,outcome=%q} %d\n", *worldID, "dropped", ms.DroppedTotal)
		}
	})

	// Local-only state peek for operators.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID string        `json:"world_id"`
			Tick    uint64        `json:"tick"`
			Metrics world.Metrics `json:"metrics"`
		}{
			WorldID: *worldID,
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})

	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
