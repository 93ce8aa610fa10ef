package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"repopilot/internal/assemble"
	"repopilot/internal/cache"
	cachebadger "repopilot/internal/cache/badger"
	cachedisk "repopilot/internal/cache/disk"
	cachememory "repopilot/internal/cache/memory"
	cachepostgres "repopilot/internal/cache/postgres"
	"repopilot/internal/export"
	"repopilot/internal/fingerprint"
	"repopilot/internal/lang"
	"repopilot/internal/llm"
	"repopilot/internal/model"
	"repopilot/internal/orchestrator"
	"repopilot/internal/scan"
	"repopilot/internal/watch"
)

func main() {
	repo := flag.String("repo", "", "path to the repository root")
	outDir := flag.String("out", "out", "output directory")
	provider := flag.String("provider", "gemini", "generation backend: gemini, openai, fake")
	modelID := flag.String("model", "gemini-2.5-flash", "model id")
	concurrency := flag.Int("concurrency", 4, "max simultaneous generation calls")
	cacheKind := flag.String("cache", "disk", "cache backend: memory, disk, badger, postgres")
	cacheDir := flag.String("cache-dir", ".repopilot-cache", "directory for disk/badger cache backends")
	rps := flag.Float64("rps", 0, "requests per second limit (0 disables)")
	nameSensitive := flag.Bool("name-sensitive", false, "fold declaration names into fingerprints")
	watchMode := flag.Bool("watch", false, "rebuild on source changes")
	flag.Parse()
	if *repo == "" {
		log.Fatal("--repo is required")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal(err)
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(*cacheKind, *cacheDir)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	client, err := openClient(ctx, *provider, *modelID)
	if err != nil {
		log.Fatal(err)
	}
	if *rps > 0 {
		client = llm.Wrap(client, llm.RateLimit(*rps, 1))
	}
	client = llm.Wrap(client, llm.WithLogging(nil))
	defer client.Close()

	orch := &orchestrator.Orchestrator{
		Client:      client,
		Store:       store,
		Concurrency: *concurrency,
	}
	fpCfg := fingerprint.Config{IncludeNames: *nameSensitive}

	run := func(ctx context.Context) {
		start := time.Now()
		files, err := scan.Snapshot(*repo, scan.Options{})
		if err != nil {
			log.Printf("scan failed: %v", err)
			return
		}
		log.Printf("scanned %d files in %s", len(files), *repo)

		builder := &model.Builder{Registry: lang.Default()}
		tree, err := builder.Build(ctx, files)
		if err != nil {
			log.Printf("build failed: %v", err)
			return
		}

		res, err := orch.Resolve(ctx, tree, fingerprint.New(fpCfg))
		if err != nil {
			log.Printf("resolve aborted: %v", err)
			return
		}

		out := assemble.Assemble(tree, res)
		if err := export.WriteJSON(out, filepath.Join(*outDir, "repo_map.json")); err != nil {
			log.Printf("export failed: %v", err)
			return
		}
		if err := export.WriteTour(out, filepath.Join(*outDir, "repo_tour.md")); err != nil {
			log.Printf("export failed: %v", err)
			return
		}
		uploadArtifacts(ctx, *outDir)
		log.Printf("done in %s: %d generated, %d cached, %d failed → %s",
			time.Since(start).Round(time.Millisecond),
			out.Stats.Generated, out.Stats.CacheHits, out.Stats.Failed, *outDir)
	}

	run(ctx)
	if *watchMode {
		w := &watch.Watcher{}
		log.Printf("watching %s for changes", *repo)
		if err := w.Run(ctx, *repo, run); err != nil && ctx.Err() == nil {
			log.Fatal(err)
		}
	}
}

func openStore(kind, dir string) (cache.Store, error) {
	switch kind {
	case "memory":
		return cachememory.New(0)
	case "badger":
		return cachebadger.New(filepath.Join(dir, "badger"))
	case "postgres":
		return cachepostgres.New(os.Getenv("REPOPILOT_PG_DSN"))
	default:
		return cachedisk.New(dir)
	}
}

func openClient(ctx context.Context, provider, model string) (llm.Client, error) {
	switch provider {
	case "openai":
		return llm.NewOpenAIClient("", os.Getenv("OPENAI_BASE_URL"), model, 0), nil
	case "fake":
		return llm.NewFakeClient(0), nil
	default:
		return llm.NewGeminiClient(ctx, model, 0)
	}
}

// uploadArtifacts publishes exports to S3-compatible storage when configured
// via REPOPILOT_S3_* env vars; otherwise it is a no-op.
func uploadArtifacts(ctx context.Context, outDir string) {
	endpoint := os.Getenv("REPOPILOT_S3_ENDPOINT")
	if endpoint == "" {
		return
	}
	up, err := export.NewS3Uploader(export.S3Config{
		Endpoint:  endpoint,
		Region:    os.Getenv("REPOPILOT_S3_REGION"),
		AccessKey: os.Getenv("REPOPILOT_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("REPOPILOT_S3_SECRET_KEY"),
		Bucket:    os.Getenv("REPOPILOT_S3_BUCKET"),
		UseSSL:    os.Getenv("REPOPILOT_S3_SSL") == "true",
	})
	if err != nil {
		log.Printf("s3 disabled: %v", err)
		return
	}
	for _, f := range []struct{ name, ctype string }{
		{"repo_map.json", "application/json"},
		{"repo_tour.md", "text/markdown"},
	} {
		raw, err := os.ReadFile(filepath.Join(outDir, f.name))
		if err != nil {
			continue
		}
		if err := up.Upload(ctx, f.name, raw, f.ctype); err != nil {
			log.Printf("s3 upload failed: %v", err)
		}
	}
}
