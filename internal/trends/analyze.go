package trends

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"mentionwatch/internal/model"
	"mentionwatch/internal/normalize"
)

const (
	// Relevance weights; each component is in [0, 1].
	weightVolume     = 0.40
	weightEngagement = 0.35
	weightRecency    = 0.25

	// volumeHalf and engagementHalf are where those components reach 0.5.
	volumeHalf     = 10.0
	engagementHalf = 500.0
	// gravity follows the (hours+2)^1.8 decay, with age scaled so the
	// window spans gravityScale units.
	gravity      = 1.8
	gravityScale = 10.0

	// mergeJaccard merges a keyword into an existing topic when their
	// conversation sets overlap at least this much.
	mergeJaccard = 0.5
	// clusterOverlap joins two topics into one story when the shared share of
	// the smaller topic reaches it.
	clusterOverlap = 0.3
	maxCandidates  = 200

	risingRatio       = 1.5
	emergingShare     = 0.75
	emergingLookback  = 24 * time.Hour
	declineThreshold  = 0.1
	maxThemeWords     = 3
	maxKeyPhrases     = 5
	maxSharedKeywords = 10
)

type doc struct {
	id         string
	platform   string
	at         time.Time
	terms      []string
	sentiment  model.Sentiment
	engagement int64
	content    string
}

type topic struct {
	lead     string
	keywords []string
	members  []int // indexes into docs, ascending
	out      TrendingTopic
}

type analysis struct {
	docs     []doc
	now      time.Time
	start    time.Time
	mid      time.Time
	window   time.Duration
	lookback time.Duration
	bucket   time.Duration
	opts     Options
}

// Analyze computes a report from conversations already loaded for one tenant.
// It is deterministic for a given input, now and options.
func Analyze(convs []model.Conversation, now time.Time, opts Options) Report {
	opts = opts.withDefaults()
	now = now.UTC()
	a := &analysis{
		now:    now,
		start:  now.Add(-opts.Window),
		mid:    now.Add(-opts.Window / 2),
		window: opts.Window,
		opts:   opts,
	}
	a.lookback = emergingLookback
	if opts.Window <= 2*emergingLookback {
		a.lookback = opts.Window / 4
	}
	a.bucket = time.Hour
	if opts.Window > 48*time.Hour {
		a.bucket = 24 * time.Hour
	}
	a.docs = prepare(convs, a.start, now)

	rep := Report{
		GeneratedAt:           now,
		Window:                TimeRange{Start: a.start, End: now},
		TrendingTopics:        []TrendingTopic{},
		StoryClusters:         []StoryCluster{},
		EmergingThemes:        []EmergingTheme{},
		DecliningSentiments:   []DecliningSentiment{},
		CrossPlatformInsights: []CrossPlatformInsight{},
	}
	if len(a.docs) == 0 {
		return rep
	}

	topics := a.group()
	for _, t := range topics {
		a.describe(t)
	}
	kept := topics[:0]
	for _, t := range topics {
		if t.out.ConversationCount >= opts.MinConversations && t.out.RelevanceScore >= opts.MinRelevance {
			kept = append(kept, t)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].out.RelevanceScore != kept[j].out.RelevanceScore {
			return kept[i].out.RelevanceScore > kept[j].out.RelevanceScore
		}
		return kept[i].out.ID < kept[j].out.ID
	})

	for _, t := range kept {
		if t.out.Emerging {
			rep.EmergingThemes = append(rep.EmergingThemes, a.emerging(t))
		}
		if d, ok := a.declining(t); ok {
			rep.DecliningSentiments = append(rep.DecliningSentiments, d)
		}
		if ins, ok := a.insight(t); ok {
			rep.CrossPlatformInsights = append(rep.CrossPlatformInsights, ins)
		}
	}
	slices.SortStableFunc(rep.DecliningSentiments, func(x, y DecliningSentiment) int {
		return cmp.Or(cmp.Compare(x.SentimentChange, y.SentimentChange), cmp.Compare(x.Theme, y.Theme))
	})
	slices.SortStableFunc(rep.CrossPlatformInsights, func(x, y CrossPlatformInsight) int {
		return cmp.Or(cmp.Compare(y.CorrelationStrength, x.CorrelationStrength), cmp.Compare(x.Theme, y.Theme))
	})

	if len(kept) > opts.MaxResults {
		kept = kept[:opts.MaxResults]
	}
	for _, t := range kept {
		rep.TrendingTopics = append(rep.TrendingTopics, t.out)
	}
	rep.StoryClusters = a.clusters(kept)

	rep.EmergingThemes = capped(rep.EmergingThemes, opts.MaxResults)
	rep.DecliningSentiments = capped(rep.DecliningSentiments, opts.MaxResults)
	rep.CrossPlatformInsights = capped(rep.CrossPlatformInsights, opts.MaxResults)
	rep.StoryClusters = capped(rep.StoryClusters, opts.MaxResults)
	return rep
}

func prepare(convs []model.Conversation, start, now time.Time) []doc {
	docs := make([]doc, 0, len(convs))
	for _, c := range convs {
		at := c.Time()
		if at.IsZero() {
			at = c.CreatedAt
		}
		if at.IsZero() || at.Before(start) {
			continue
		}
		if at.After(now) {
			at = now
		}
		terms := c.Keywords
		if len(terms) == 0 {
			terms = normalize.ExtractKeywords(c.Content)
		}
		docs = append(docs, doc{
			id:         c.ID,
			platform:   c.Platform,
			at:         at.UTC(),
			terms:      dedupe(terms),
			sentiment:  c.Sentiment,
			engagement: c.Engagement.Total(),
			content:    c.Content,
		})
	}
	slices.SortFunc(docs, func(x, y doc) int {
		return cmp.Or(x.at.Compare(y.at), cmp.Compare(x.id, y.id))
	})
	return docs
}

// group buckets documents into topics by shared keywords. Candidate keywords
// are visited from most to least frequent; each either joins the topic whose
// conversation set it overlaps most (Jaccard >= mergeJaccard) or starts a new one.
func (a *analysis) group() []*topic {
	postings := make(map[string][]int)
	for i, d := range a.docs {
		for _, t := range d.terms {
			postings[t] = append(postings[t], i)
		}
	}
	minDocs := max(a.opts.MinConversations, 2)
	var cands []string
	for term, p := range postings {
		if len(p) >= minDocs {
			cands = append(cands, term)
		}
	}
	slices.SortFunc(cands, func(x, y string) int {
		return cmp.Or(cmp.Compare(len(postings[y]), len(postings[x])), cmp.Compare(x, y))
	})
	if len(cands) > maxCandidates {
		cands = cands[:maxCandidates]
	}

	var topics []*topic
	for _, term := range cands {
		p := postings[term]
		var best *topic
		bestScore := 0.0
		for _, t := range topics {
			if s := jaccard(p, t.members); s >= mergeJaccard && s > bestScore {
				best, bestScore = t, s
			}
		}
		if best == nil {
			topics = append(topics, &topic{lead: term, keywords: []string{term}, members: slices.Clone(p)})
			continue
		}
		best.keywords = append(best.keywords, term)
		best.members = union(best.members, p)
	}
	return topics
}

func (a *analysis) describe(t *topic) {
	out := &t.out
	out.ID = "topic-" + t.lead
	out.Keywords = t.keywords
	out.Theme = strings.Join(t.keywords[:min(len(t.keywords), maxThemeWords)], " ")
	out.ConversationCount = len(t.members)

	platforms := map[string]struct{}{}
	var earlier, later, recent int
	ages := make([]time.Duration, 0, len(t.members))
	for _, i := range t.members {
		d := a.docs[i]
		out.ConversationIDs = append(out.ConversationIDs, d.id)
		out.Engagement += d.engagement
		platforms[d.platform] = struct{}{}
		addSentiment(&out.Sentiment, d.sentiment)
		ages = append(ages, a.now.Sub(d.at))
		if d.at.Before(a.mid) {
			earlier++
		} else {
			later++
		}
		if !d.at.Before(a.now.Add(-a.lookback)) {
			recent++
		}
	}
	out.Platforms = sortedKeys(platforms)
	out.TimeRange = TimeRange{Start: a.docs[t.members[0]].at, End: a.docs[t.members[len(t.members)-1]].at}
	out.RelevanceScore = relevance(len(t.members), out.Engagement, ages, a.window)

	out.Direction = DirectionStable
	switch {
	case later >= 2 && float64(later) > risingRatio*float64(earlier):
		out.Direction = DirectionRising
	case earlier >= 2 && float64(earlier) > risingRatio*float64(later):
		out.Direction = DirectionFalling
	}
	out.Rising = out.Direction == DirectionRising
	out.Emerging = float64(recent) >= emergingShare*float64(len(t.members))
}

// relevance combines volume, engagement and recency into [0, 1]. It never
// decreases with more engagement or more conversations and never increases
// with age.
func relevance(n int, engagement int64, ages []time.Duration, window time.Duration) float64 {
	if n <= 0 {
		return 0
	}
	volume := float64(n) / (float64(n) + volumeHalf)
	e := math.Max(0, float64(engagement))
	eng := e / (e + engagementHalf)
	var rec float64
	for _, age := range ages {
		rec += recency(age, window)
	}
	if len(ages) > 0 {
		rec /= float64(len(ages))
	}
	return round4(clamp01(weightVolume*volume + weightEngagement*eng + weightRecency*rec))
}

// recency is 1 for brand-new content and decays with age.
func recency(age, window time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	x := gravityScale * float64(age) / float64(window)
	return math.Pow(2/(x+2), gravity)
}

func (a *analysis) emerging(t *topic) EmergingTheme {
	e := EmergingTheme{
		Theme:             t.out.Theme,
		Keywords:          t.out.Keywords,
		ConversationCount: t.out.ConversationCount,
		FirstSeen:         t.out.TimeRange.Start,
		Platforms:         t.out.Platforms,
	}
	for _, i := range t.members {
		if !a.docs[i].at.Before(a.now.Add(-a.lookback)) {
			e.RecentCount++
		}
	}
	return e
}

// declining compares net sentiment between the two halves of the window.
func (a *analysis) declining(t *topic) (DecliningSentiment, bool) {
	var prev, cur SentimentDistribution
	for _, i := range t.members {
		d := a.docs[i]
		if d.at.Before(a.mid) {
			addSentiment(&prev, d.sentiment)
		} else {
			addSentiment(&cur, d.sentiment)
		}
	}
	if total(prev) == 0 || total(cur) == 0 {
		return DecliningSentiment{}, false
	}
	change := round4(cur.Net() - prev.Net())
	if change >= -declineThreshold {
		return DecliningSentiment{}, false
	}
	return DecliningSentiment{
		Theme:             t.out.Theme,
		Keywords:          t.out.Keywords,
		PreviousSentiment: round4(prev.Net()),
		CurrentSentiment:  round4(cur.Net()),
		SentimentChange:   change,
		ConversationCount: t.out.ConversationCount,
		Timeframe: Timeframe{
			Previous: TimeRange{Start: a.start, End: a.mid},
			Current:  TimeRange{Start: a.mid, End: a.now},
		},
	}, true
}

// insight scores how tightly a multi-platform topic co-occurs: the mean
// keyword overlap between platform pairs averaged with the share of active
// time buckets where more than one platform spoke.
func (a *analysis) insight(t *topic) (CrossPlatformInsight, bool) {
	if len(t.out.Platforms) < 2 {
		return CrossPlatformInsight{}, false
	}
	terms := a.platformTerms(t.members)
	var overlap float64
	pairs := 0
	for i, p := range t.out.Platforms {
		for _, q := range t.out.Platforms[i+1:] {
			overlap += setJaccard(terms[p], terms[q])
			pairs++
		}
	}
	overlap /= float64(pairs)

	active := map[time.Time]map[string]struct{}{}
	for _, i := range t.members {
		d := a.docs[i]
		b := d.at.Truncate(a.bucket)
		if active[b] == nil {
			active[b] = map[string]struct{}{}
		}
		active[b][d.platform] = struct{}{}
	}
	co := 0
	for _, ps := range active {
		if len(ps) > 1 {
			co++
		}
	}
	temporal := float64(co) / float64(len(active))

	return CrossPlatformInsight{
		Theme:               t.out.Theme,
		Keywords:            t.out.Keywords,
		Platforms:           t.out.Platforms,
		CorrelationStrength: round4(clamp01((overlap + temporal) / 2)),
		SharedKeywords:      sharedAcross(terms, maxSharedKeywords),
		ConversationCount:   t.out.ConversationCount,
	}, true
}

// clusters joins overlapping topics into stories. topics must be sorted by
// relevance so the first topic of each story is its lead.
func (a *analysis) clusters(topics []*topic) []StoryCluster {
	parent := make([]int, len(topics))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range topics {
		for j := i + 1; j < len(topics); j++ {
			if overlapShare(topics[i].members, topics[j].members) >= clusterOverlap {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[max(ri, rj)] = min(ri, rj)
				}
			}
		}
	}
	groups := map[int][]*topic{}
	var roots []int
	for i, t := range topics {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], t)
	}

	out := make([]StoryCluster, 0, len(roots))
	for _, r := range roots {
		out = append(out, a.story(groups[r]))
	}
	slices.SortStableFunc(out, func(x, y StoryCluster) int {
		return cmp.Or(cmp.Compare(y.RelevanceScore, x.RelevanceScore), cmp.Compare(x.ID, y.ID))
	})
	return out
}

func (a *analysis) story(group []*topic) StoryCluster {
	lead := group[0]
	var members []int
	sc := StoryCluster{
		ID:             "story-" + lead.lead,
		Title:          lead.out.Theme,
		MainTheme:      lead.out.Theme,
		SubThemes:      []string{},
		RelevanceScore: lead.out.RelevanceScore,
	}
	for _, t := range group {
		members = union(members, t.members)
		if t != lead {
			sc.SubThemes = append(sc.SubThemes, t.out.Theme)
		}
	}

	platforms := map[string]struct{}{}
	termCount := map[string]int{}
	buckets := map[time.Time]*SentimentPoint{}
	for _, i := range members {
		d := a.docs[i]
		sc.ConversationIDs = append(sc.ConversationIDs, d.id)
		platforms[d.platform] = struct{}{}
		for _, term := range d.terms {
			termCount[term]++
		}
		b := d.at.Truncate(a.bucket)
		pt := buckets[b]
		if pt == nil {
			pt = &SentimentPoint{Timestamp: b}
			buckets[b] = pt
		}
		pt.Count++
		switch d.sentiment {
		case model.SentimentPositive:
			pt.Positive++
		case model.SentimentNegative:
			pt.Negative++
		default:
			pt.Neutral++
		}
	}
	sort.Strings(sc.ConversationIDs)
	sc.Platforms = sortedKeys(platforms)
	sc.TimeSpan = TimeRange{Start: a.docs[members[0]].at, End: a.docs[members[len(members)-1]].at}
	sc.KeyPhrases = topTerms(termCount, maxKeyPhrases)

	sc.SentimentEvolution = make([]SentimentPoint, 0, len(buckets))
	for _, pt := range buckets {
		pt.Sentiment = round4(float64(pt.Positive-pt.Negative) / float64(pt.Count))
		sc.SentimentEvolution = append(sc.SentimentEvolution, *pt)
	}
	slices.SortFunc(sc.SentimentEvolution, func(x, y SentimentPoint) int { return x.Timestamp.Compare(y.Timestamp) })

	sc.Links = []CrossPlatformLink{}
	terms := a.platformTerms(members)
	for i, p := range sc.Platforms {
		for _, q := range sc.Platforms[i+1:] {
			shared := intersectSorted(terms[p], terms[q])
			if len(shared) == 0 {
				continue
			}
			sc.Links = append(sc.Links, CrossPlatformLink{
				From:           p,
				To:             q,
				SharedKeywords: shared[:min(len(shared), maxSharedKeywords)],
				Strength:       round4(setJaccard(terms[p], terms[q])),
			})
		}
	}
	sc.Summary = fmt.Sprintf("%d conversations on %s between %s and %s.",
		len(members), strings.Join(sc.Platforms, ", "),
		sc.TimeSpan.Start.Format("2006-01-02 15:04"), sc.TimeSpan.End.Format("2006-01-02 15:04"))
	return sc
}

func (a *analysis) platformTerms(members []int) map[string]map[string]struct{} {
	out := map[string]map[string]struct{}{}
	for _, i := range members {
		d := a.docs[i]
		set := out[d.platform]
		if set == nil {
			set = map[string]struct{}{}
			out[d.platform] = set
		}
		for _, t := range d.terms {
			set[t] = struct{}{}
		}
	}
	return out
}

// samples returns up to n member contents of a story, newest first.
func (a *analysis) samples(ids []string, n int) []string {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []string
	for i := len(a.docs) - 1; i >= 0 && len(out) < n; i-- {
		if _, ok := want[a.docs[i].id]; ok {
			out = append(out, a.docs[i].content)
		}
	}
	return out
}
