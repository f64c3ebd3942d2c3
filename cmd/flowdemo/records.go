package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/kbukum/flowkit/flow"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/validation"
)

// SourceConfig shapes the simulated paginated API.
type SourceConfig struct {
	Pages    int           `yaml:"pages" mapstructure:"pages" validate:"gte=1"`
	PageSize int           `yaml:"page_size" mapstructure:"page_size" validate:"gte=1,lte=1000"`
	Latency  time.Duration `yaml:"latency" mapstructure:"latency" validate:"gte=0"`
	// Rate caps records per second entering enrichment. 0 disables it.
	Rate     float64       `yaml:"rate" mapstructure:"rate" validate:"gte=0"`
	Burst    int           `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
}

// ApplyDefaults fills zero fields.
func (c *SourceConfig) ApplyDefaults() {
	if c.Pages == 0 {
		c.Pages = 5
	}
	if c.PageSize == 0 {
		c.PageSize = 20
	}
	if c.Latency == 0 {
		c.Latency = 20 * time.Millisecond
	}
}

// Validate checks the configured bounds.
func (c *SourceConfig) Validate() error {
	return validation.Validate(c)
}

// Record is one item returned by the simulated API.
type Record struct {
	ID     int
	Page   int
	Name   string
	Region string
	Score  int
	Flag   bool
}

var regions = []string{"north", "south", "east", "west"}

// fetchPage simulates one request to a paginated remote API.
func fetchPage(ctx context.Context, cfg SourceConfig, page int) ([]Record, error) {
	select {
	case <-time.After(cfg.Latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	out := make([]Record, cfg.PageSize)
	for i := range out {
		id := page*cfg.PageSize + i + 1
		out[i] = Record{ID: id, Page: page, Name: fmt.Sprintf("record-%05d", id)}
	}
	return out, nil
}

// paginatedRecords reads one page per demand and emits its records in
// order. The page cursor is per run.
func paginatedRecords(cfg SourceConfig) *flow.Pipeline[Record] {
	return flow.FromFunc(func(context.Context) flow.Source[Record] {
		page := 0
		return flow.Source[Record]{
			Read: func(ctx context.Context, emit *flow.Emitter[Record]) error {
				if page >= cfg.Pages {
					emit.Close()
					return nil
				}
				records, err := fetchPage(ctx, cfg, page)
				if err != nil {
					return err
				}
				page++
				for _, r := range records {
					if err := emit.Emit(r); err != nil {
						return err
					}
				}
				return nil
			},
		}
	}).Named("records")
}

// pushRecords feeds the same pages through a pushable source from a
// producer goroutine.
func pushRecords(ctx context.Context, cfg *DemoConfig, log *logger.Logger) *flow.Pipeline[Record] {
	src := flow.NewPushable[Record](cfg.Flow.PushBuffer)
	go func() {
		defer src.Close()
		for page := 0; page < cfg.Source.Pages; page++ {
			records, err := fetchPage(ctx, cfg.Source, page)
			if err != nil {
				log.Warn("producer stopped", logger.Fields(logger.FieldError, err.Error()))
				return
			}
			for _, r := range records {
				if err := src.Push(ctx, r); err != nil {
					log.Warn("producer stopped", logger.Fields(logger.FieldError, err.Error()))
					return
				}
			}
		}
	}()
	return src.Pipeline()
}

// enrich simulates a slow lookup per record.
func enrich(ctx context.Context, r Record) (Record, error) {
	select {
	case <-time.After(time.Duration(rand.IntN(10)) * time.Millisecond):
	case <-ctx.Done():
		return r, ctx.Err()
	}
	r.Region = regions[r.ID%len(regions)]
	return r, nil
}

func score(_ context.Context, r Record) (Record, error) {
	r.Score = (r.ID*37 + len(r.Name)) % 100
	r.Flag = r.Score > 80 || strings.HasSuffix(r.Name, "13")
	return r, nil
}

func buildPipeline(records *flow.Pipeline[Record], cfg *DemoConfig) *flow.Pipeline[[]Record] {
	limited := flow.RateLimit(records, cfg.Source.Rate, cfg.Source.Burst)
	enriched := flow.MapParallel(limited, cfg.Flow.Concurrency, enrich)
	scored := flow.Parallelize(enriched, cfg.Flow.Lanes, func(lane *flow.Pipeline[Record]) *flow.Pipeline[Record] {
		return flow.Map(lane, score)
	})
	return flow.Batch(scored, cfg.Flow.BatchSize)
}

type summary struct {
	batches int
	records int
	flagged int
}

func (s *summary) add(log *logger.Logger) func(context.Context, []Record) error {
	return func(_ context.Context, batch []Record) error {
		s.batches++
		s.records += len(batch)
		flagged := 0
		for _, r := range batch {
			if r.Flag {
				flagged++
			}
		}
		s.flagged += flagged
		log.Debug("batch delivered", logger.Fields(
			logger.FieldCount, len(batch),
			"flagged", flagged,
		))
		return nil
	}
}
