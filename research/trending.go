package research

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vartanbeno/go-reddit/v2/reddit"

	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/types"
)

// hookKeywords boost stories with the framing that performs in shorts.
var hookKeywords = []string{
	"shocking", "secret", "revealed", "breaking", "viral", "insane",
	"unbelievable", "mystery", "exposed", "banned", "record", "first time",
	"nobody", "truth", "caught", "warning", "mistake", "hidden",
}

// Finder pulls candidate topics from Reddit and Google News and scores
// them for hook potential.
type Finder struct {
	cfg        config.ResearchConfig
	reddit     *reddit.Client
	httpClient *http.Client
}

func NewFinder(cfg config.ResearchConfig) (*Finder, error) {
	client, err := reddit.NewReadonlyClient()
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &Finder{
		cfg:        cfg,
		reddit:     client,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

// Trending gathers, scores and sorts topics from every configured source.
// A failed source is logged and skipped; only zero usable sources is an
// error.
func (f *Finder) Trending(ctx context.Context, limit int) ([]types.TrendingTopic, error) {
	if limit <= 0 {
		limit = 10
	}
	var topics []types.TrendingTopic
	sources := 0

	redditTopics, err := f.fromReddit(ctx)
	if err != nil {
		log.Warn().Str("stage", "research").Err(err).Msg("reddit source failed")
	} else {
		topics = append(topics, redditTopics...)
		sources++
	}

	newsTopics, err := f.fromGoogleNews(ctx)
	if err != nil {
		log.Warn().Str("stage", "research").Err(err).Msg("google news source failed")
	} else {
		topics = append(topics, newsTopics...)
		sources++
	}

	if sources == 0 {
		return nil, fmt.Errorf("all research sources failed")
	}

	sort.SliceStable(topics, func(i, j int) bool { return topics[i].Score > topics[j].Score })
	if len(topics) > limit {
		topics = topics[:limit]
	}
	log.Info().Str("stage", "research").Int("topics", len(topics)).Msg("trending topics collected")
	return topics, nil
}

func (f *Finder) fromReddit(ctx context.Context) ([]types.TrendingTopic, error) {
	var topics []types.TrendingTopic
	for _, sub := range f.cfg.Subreddits {
		posts, _, err := f.reddit.Subreddit.TopPosts(ctx, sub, &reddit.ListPostOptions{
			ListOptions: reddit.ListOptions{Limit: 25},
			Time:        "day",
		})
		if err != nil {
			return nil, fmt.Errorf("r/%s: %w", sub, err)
		}
		for _, post := range posts {
			if post.Score < f.cfg.MinRedditScore || post.NumberOfComments < f.cfg.MinComments {
				continue
			}
			topic := types.TrendingTopic{
				Title:     post.Title,
				Source:    "reddit:" + sub,
				SourceURL: "https://www.reddit.com" + post.Permalink,
				Score:     hookScore(post.Title) + engagementScore(post.Score, post.NumberOfComments),
				Keywords:  matchedHooks(post.Title),
				Mission:   missionFromTitle(post.Title),
			}
			if post.Created != nil {
				topic.PublishedAt = post.Created.Time.UTC().Format(time.RFC3339)
			}
			topics = append(topics, topic)
		}
	}
	return topics, nil
}

// rssFeed covers the slice of the Google News RSS schema we read.
type rssFeed struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (f *Finder) fromGoogleNews(ctx context.Context) ([]types.TrendingTopic, error) {
	var topics []types.TrendingTopic
	for _, query := range f.cfg.NewsQueries {
		endpoint := fmt.Sprintf("https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en",
			url.QueryEscape(query))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch news for %q: %w", query, err)
		}
		var feed rssFeed
		err = xml.NewDecoder(resp.Body).Decode(&feed)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("parse news feed for %q: %w", query, err)
		}
		for _, item := range feed.Channel.Items {
			title := strings.TrimSpace(item.Title)
			if title == "" || f.tooOld(item.PubDate) {
				continue
			}
			topics = append(topics, types.TrendingTopic{
				Title:       title,
				Source:      "google-news:" + query,
				SourceURL:   item.Link,
				Score:       hookScore(title) + 5,
				PublishedAt: item.PubDate,
				Keywords:    matchedHooks(title),
				Mission:     missionFromTitle(title),
			})
		}
	}
	return topics, nil
}

func (f *Finder) tooOld(pubDate string) bool {
	if f.cfg.LookbackDays <= 0 || pubDate == "" {
		return false
	}
	t, err := time.Parse(time.RFC1123Z, pubDate)
	if err != nil {
		if t, err = time.Parse(time.RFC1123, pubDate); err != nil {
			return false
		}
	}
	return time.Since(t) > time.Duration(f.cfg.LookbackDays)*24*time.Hour
}

func hookScore(title string) int {
	lower := strings.ToLower(title)
	score := 0
	for _, kw := range hookKeywords {
		if strings.Contains(lower, kw) {
			score += 10
		}
	}
	if strings.Contains(title, "?") {
		score += 5
	}
	if len(title) >= 30 && len(title) <= 110 {
		score += 5
	}
	return score
}

func matchedHooks(title string) []string {
	lower := strings.ToLower(title)
	var hits []string
	for _, kw := range hookKeywords {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

func engagementScore(upvotes, comments int) int {
	score := 0
	switch {
	case upvotes >= 10000:
		score += 20
	case upvotes >= 1000:
		score += 10
	case upvotes >= 100:
		score += 5
	}
	if comments >= 500 {
		score += 10
	} else if comments >= 50 {
		score += 5
	}
	return score
}

// missionFromTitle turns a headline into a generation mission.
func missionFromTitle(title string) string {
	return fmt.Sprintf("Create a short explaining: %s", strings.TrimSpace(title))
}
