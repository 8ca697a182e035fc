package main

import (
	"context"
	"fmt"
	"os"

	"datasearch/config"
	"datasearch/dao/model"
	"datasearch/dao/query"
	"datasearch/dao/store"
	"datasearch/embedding"
	"datasearch/enrich"
	"datasearch/ingest"
	"datasearch/logutils"
	"datasearch/service"

	"github.com/gin-gonic/gin"
)

func main() {
	r := gin.Default()
	err := query.InitDB()
	if err != nil {
		fmt.Println("err init:", err)
		os.Exit(1)
	}

	conf := config.GetConfig()

	datasets := store.NewDatasetStore(query.DB)
	logs := store.NewEnrichmentLogStore(query.DB)

	hfClient := ingest.NewHFClient(ingest.HFClientConfig{
		BaseURL:   conf.Sources.HuggingFace.BaseURL,
		Token:     conf.Sources.HuggingFace.Token,
		PageSize:  conf.Sources.HuggingFace.PageSize,
		PageDelay: conf.HFPageDelay(),
	})
	kaggleClient := ingest.NewKaggleClient(ingest.KaggleConfig{
		BaseURL:  conf.Sources.Kaggle.BaseURL,
		Username: conf.Sources.Kaggle.Username,
		Key:      conf.Sources.Kaggle.Key,
		Throttle: conf.KaggleThrottle(),
	})
	snapshot := ingest.NewSnapshotParser(ingest.SnapshotConfig{
		CacheDir:    conf.Sources.Kaggle.CacheDir,
		DownloadURL: conf.Sources.Kaggle.SnapshotURL,
		BatchSize:   conf.Enrichment.SeedBatchSize,
	})
	encoder := embedding.NewGenerator(embedding.GeneratorConfig{
		BaseURL:   conf.Embedding.BaseURL,
		Model:     conf.Embedding.Model,
		Dimension: conf.Embedding.Dimension,
		BatchSize: conf.Embedding.BatchSize,
	})

	orch := enrich.NewOrchestrator(enrich.Config{
		Datasets: datasets,
		Logs:     logs,
		Bulk:     snapshot,
		Incremental: map[string]enrich.IncrementalSource{
			model.SourceHuggingFace: &enrich.HFSource{Client: hfClient},
			model.SourceKaggle:      &enrich.KaggleSource{Client: kaggleClient},
		},
		Detail: map[string]enrich.DetailFetcher{
			model.SourceHuggingFace: hfClient,
			model.SourceKaggle:      kaggleClient,
		},
		Encoder:        encoder,
		MaxAttempts:    conf.Enrichment.MaxAttempts,
		HydrateWorkers: conf.Enrichment.HydrateWorkers,
		EmbedBatchSize: conf.Enrichment.EmbedBatchSize,
		Throttle:       conf.KaggleThrottle(),
		StaleAfter:     conf.StaleAfter(),
	})

	service.Init(datasets, logs, orch, snapshot)

	if conf.Enrichment.LoopEnabled {
		go orch.StartLoop(context.Background(), enrich.LoopConfig{
			Interval:     conf.LoopInterval(),
			HydrateLimit: conf.Enrichment.HydrateBatchSize,
			EmbedLimit:   conf.Enrichment.EmbedBatchSize,
		})
	}

	apiGroup := r.Group("api")
	service.RegisterSearch(apiGroup)
	service.RegisterSystem(apiGroup)
	service.RegisterTracking(apiGroup)

	adminGroup := r.Group("api/admin")
	service.RegisterJobs(adminGroup)

	err = r.Run(conf.Server.Addr)
	if err != nil {
		logutils.Log.Fatal(err)
	}
}
