package main

import (
	"context"
	"errors"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/consumer-puls/insights-scraper/internal/cache"
	"github.com/consumer-puls/insights-scraper/internal/checkpoint"
	"github.com/consumer-puls/insights-scraper/internal/config"
	"github.com/consumer-puls/insights-scraper/internal/dataset"
	"github.com/consumer-puls/insights-scraper/internal/feed"
	"github.com/consumer-puls/insights-scraper/internal/model"
	"github.com/consumer-puls/insights-scraper/internal/monitor"
	"github.com/consumer-puls/insights-scraper/internal/notify"
	"github.com/consumer-puls/insights-scraper/internal/pace"
	"github.com/consumer-puls/insights-scraper/internal/storedids"
	"github.com/consumer-puls/insights-scraper/internal/upload"
	"github.com/consumer-puls/insights-scraper/internal/validate"
	"github.com/consumer-puls/insights-scraper/internal/window"
)

var (
	runInput    string
	runThrottle bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume scraped fragments and build the dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := initKV(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		sink, err := dataset.NewLocal(cfg.Dataset.Path, datasetName())
		if err != nil {
			return err
		}
		defer sink.Close()
		if err := sink.Migrate(ctx); err != nil {
			return err
		}

		c := cache.New(store)
		if err := c.Init(ctx); err != nil {
			return eris.Wrap(err, "init cache")
		}

		m := monitor.New(store)
		if err := m.Init(ctx, sink, nil); err != nil {
			return eris.Wrap(err, "init monitor")
		}

		runEnv := model.NewRunEnv(cfg.RunID, m.Stats().DefaultDatasetID)

		stored, err := storedids.Load(ctx, store)
		if err != nil {
			return eris.Wrap(err, "load stored ids")
		}

		minimum, err := reviewMinimum(cfg.Reviews)
		if err != nil {
			return err
		}
		zap.L().Info("review window resolved",
			zap.String("component", "run"),
			zap.String("minimumDate", window.DateString(time.Unix(minimum, 0))),
		)

		// Checkpoints run in the background until the loop finishes, then
		// flush one final snapshot before the process exits.
		cp := checkpoint.New(c, m)
		cpCtx, cpCancel := context.WithCancel(context.Background())
		defer cpCancel()
		cpDone := make(chan struct{})
		go func() {
			defer close(cpDone)
			cp.Run(cpCtx, time.Duration(cfg.Checkpoint.IntervalSecs)*time.Second)
		}()

		r := &runner{
			cache:    c,
			monitor:  m,
			sink:     sink,
			stored:   stored,
			retailer: cfg.Retailer,
			minimum:  minimum,
		}
		if runThrottle {
			r.limiter = pace.NewLimiter(cfg.Pace.RPS, cfg.Pace.Burst,
				time.Duration(cfg.Pace.MinDelayMs)*time.Millisecond,
				time.Duration(cfg.Pace.MaxDelayMs)*time.Millisecond,
			)
		}

		src, err := feed.OpenJSONL(runInput)
		if err != nil {
			return err
		}
		defer src.Close()

		consumeErr := r.consume(ctx, src)

		cpCancel()
		<-cpDone

		if err := stored.Persist(context.Background()); err != nil {
			zap.L().Error("persist stored ids", zap.Error(err))
		}

		if consumeErr != nil {
			return consumeErr
		}

		if err := dataset.CheckForResults(ctx, sink); err != nil {
			return err
		}

		finishRun(ctx, m, sink, runEnv)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "fragments.jsonl", "JSONL file of scraped fragment envelopes")
	runCmd.Flags().BoolVar(&runThrottle, "throttle", false, "apply request pacing between envelopes")
	rootCmd.AddCommand(runCmd)
}

// runner merges incoming fragment envelopes into the cache, pushing each
// product to the sink once its final fragment arrives.
type runner struct {
	cache    *cache.Cache
	monitor  *monitor.Monitor
	sink     dataset.Sink
	stored   *storedids.Set
	retailer config.RetailerConfig
	minimum  int64
	limiter  *pace.Limiter
}

func (r *runner) consume(ctx context.Context, src feed.Source) error {
	for {
		env, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				zap.L().Warn("run interrupted, state checkpointed for resume",
					zap.String("component", "run"))
				return nil
			}
			r.monitor.AddFailed()
			zap.L().Warn("skipping malformed envelope", zap.Error(err))
			continue
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		r.handle(ctx, env)
	}
}

func (r *runner) handle(ctx context.Context, env *feed.Envelope) {
	r.monitor.AddRequestsPerLabel(env.Label, 1)

	switch env.Outcome {
	case feed.OutcomeDenied:
		r.monitor.AddDenied()
		return
	case feed.OutcomeFailed:
		r.monitor.AddFailed()
		return
	case feed.OutcomeSkipped:
		r.monitor.AddSkipped()
		return
	}
	r.monitor.AddOk()

	// Envelopes without a product id are listing results; the only thing
	// they feed is the empty-list counter.
	if env.ProductID == "" {
		if emptyFragment(env.Fragment) {
			r.monitor.AddEmptyList()
		}
		return
	}

	if _, seen := r.cache.Product(env.ProductID); !seen {
		r.monitor.AddProducts(1)
		if r.stored.Contains(env.ProductID) {
			r.monitor.AddDuplicities()
		}
	}

	frag := env.Fragment
	frag.Reviews = r.filterReviews(frag.Reviews)
	r.monitor.AddReviews(int64(len(frag.Reviews)))
	r.monitor.AddQuestionAndAnswers(int64(len(frag.QuestionsAndAnswers)))
	r.cache.AddProduct(env.ProductID, frag)

	if env.Done {
		r.finish(ctx, env)
	}
}

// filterReviews drops reviews older than the acceptance window and stamps
// an internal id on the ones that survive.
func (r *runner) filterReviews(reviews []model.Review) []model.Review {
	kept := make([]model.Review, 0, len(reviews))
	for _, rv := range reviews {
		if !window.ReviewDateValidStrict(rv.ReviewDateISO, r.minimum) {
			continue
		}
		if rv.InternalReviewID == "" {
			rv.InternalReviewID = model.NewInternalReviewID()
		}
		kept = append(kept, rv)
	}
	return kept
}

// finish assembles the accumulated record, validates it and hands it to
// the sink. An invalid record is counted but never pushed; either way the
// product leaves the cache.
func (r *runner) finish(ctx context.Context, env *feed.Envelope) {
	rec, ok := r.cache.Product(env.ProductID)
	if !ok {
		return
	}

	out := model.Output{
		RetailerName:        r.retailer.Name,
		Market:              r.retailer.Market,
		Site:                r.retailer.Site,
		Details:             rec.Details,
		Reviews:             rec.Reviews,
		QuestionsAndAnswers: rec.QuestionsAndAnswers,
	}
	wire := out.AsMap()

	switch {
	case !validate.Output(wire):
		r.monitor.AddInvalidOutput(1)
	default:
		if err := r.sink.Push(ctx, wire); err != nil {
			r.monitor.AddFailed()
			zap.L().Error("push item",
				zap.String("productId", env.ProductID),
				zap.Error(err),
			)
			break
		}
		r.monitor.AddProductsDone(1)
		if env.Subcategory != "" {
			r.monitor.AddProductsDonePerSubcategory(env.Category, env.Subcategory, 1)
		}
		r.stored.Add(env.ProductID)
	}

	r.cache.DeleteProduct(env.ProductID)
}

func emptyFragment(frag model.Fragment) bool {
	return len(frag.Details) == 0 && len(frag.Reviews) == 0 && len(frag.QuestionsAndAnswers) == 0
}

// reviewMinimum resolves the review acceptance threshold in unix seconds.
// An explicit date_from wins over the relative window.
func reviewMinimum(rc config.ReviewsConfig) (int64, error) {
	if rc.DateFrom != "" {
		minimum, err := window.MinimumTimestamp(rc.DateFrom)
		if err != nil {
			return 0, eris.Wrap(err, "parse reviews.date_from")
		}
		return minimum, nil
	}
	return window.Threshold(rc.DaysBack, rc.MonthsBack), nil
}

// finishRun performs the best-effort end-of-run side effects: the email
// notification and the dataset upload. Failures are logged, never fatal.
func finishRun(ctx context.Context, m *monitor.Monitor, sink *dataset.Local, runEnv model.RunEnv) {
	if cfg.Notify.Enabled {
		notify.New(cfg.Notify).Email(ctx, cfg.Retailer.Name, runEnv, cfg.Retailer.Categories)
	}

	if cfg.Upload.Enabled {
		export, err := sink.Export(ctx)
		if err != nil {
			zap.L().Error("export dataset", zap.Error(err))
			return
		}
		day := ""
		if t, err := time.Parse(time.RFC3339, m.Stats().DatasetDate); err == nil {
			day = window.DateString(t)
		}
		upload.NewFTP(cfg.Upload).Dataset(ctx, m.Stats().DatasetName, day, export)
	}
}
