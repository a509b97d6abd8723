package trends

import (
	"context"
	"log/slog"
	"time"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
	"mentionwatch/internal/storage"
)

// Store is the read side of conversation persistence.
type Store interface {
	ListConversations(ctx context.Context, q storage.Query) ([]model.Conversation, error)
}

// Summarizer writes a short narrative for a story cluster. samples holds the
// content of its newest member conversations.
type Summarizer interface {
	SummarizeCluster(ctx context.Context, cluster StoryCluster, samples []string) (string, error)
}

type Config struct {
	Store      Store
	Summarizer Summarizer // optional
	Logger     *slog.Logger
	Now        func() time.Time
}

type Service struct {
	store      Store
	summarizer Summarizer
	log        *slog.Logger
	now        func() time.Time
}

const summarySamples = 8

func New(cfg Config) *Service {
	s := &Service{store: cfg.Store, summarizer: cfg.Summarizer, log: cfg.Logger, now: cfg.Now}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// AnalyzeTrends loads the tenant's conversations inside the window and
// analyzes them. A store failure fails the whole call.
func (s *Service) AnalyzeTrends(ctx context.Context, tenant string, opts Options) (*Report, error) {
	if tenant == "" {
		return nil, errs.New(errs.KindValidation, "", "tenant id is required")
	}
	opts = opts.withDefaults()
	now := s.now().UTC()
	since := now.Add(-opts.Window)
	convs, err := s.store.ListConversations(ctx, storage.Query{Tenant: tenant, Since: &since, Until: &now})
	if err != nil {
		if errs.KindOf(err) == errs.KindUnknown {
			err = errs.Wrap(errs.KindPersistence, "trends: list conversations", err)
		}
		return nil, err
	}

	rep := Analyze(convs, now, opts)
	rep.TenantID = tenant
	if s.summarizer != nil && len(rep.StoryClusters) > 0 {
		s.summarize(ctx, convs, now, opts, &rep)
	}
	s.log.Info("trends: analyzed", "tenant", tenant, "conversations", len(convs),
		"topics", len(rep.TrendingTopics), "clusters", len(rep.StoryClusters))
	return &rep, nil
}

// summarize replaces the default cluster summaries. Failures keep the default.
func (s *Service) summarize(ctx context.Context, convs []model.Conversation, now time.Time, opts Options, rep *Report) {
	a := &analysis{docs: prepare(convs, now.Add(-opts.Window), now)}
	for i := range rep.StoryClusters {
		c := &rep.StoryClusters[i]
		text, err := s.summarizer.SummarizeCluster(ctx, *c, a.samples(c.ConversationIDs, summarySamples))
		if err != nil {
			s.log.Warn("trends: summarize cluster failed", "cluster", c.ID, "err", err)
			continue
		}
		if text != "" {
			c.Summary = text
		}
	}
}
