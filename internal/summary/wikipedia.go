// Package summary fetches short reference summaries for episode topics.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/book-expert/podcast-service/internal/core"
)

// Defaults for WikipediaSource.
const (
	DefaultLanguage  = "he"
	DefaultSentences = 6
	DefaultTimeout   = 15 * time.Second
	userAgent        = "podcast-service/1.0 (episode summaries)"
	maxErrorBodySize = 512
)

var (
	// ErrMixedScript is returned for topics that mix Hebrew and Latin letters.
	ErrMixedScript = fmt.Errorf("%w: topic mixes Hebrew and Latin letters", core.ErrInputRejected)
	// ErrEmptyTopic is returned for blank topics.
	ErrEmptyTopic = fmt.Errorf("%w: topic is empty", core.ErrInputRejected)
	// ErrAmbiguous is returned when the topic resolves to a disambiguation page.
	ErrAmbiguous = fmt.Errorf("%w: topic is ambiguous", core.ErrTopicNotFound)
	// ErrSummaryUnavailable is returned when the encyclopedia cannot be queried.
	ErrSummaryUnavailable = errors.New("summary source unavailable")
)

// IsMixedScript reports whether s contains both Hebrew and ASCII Latin letters.
func IsMixedScript(s string) bool {
	var hasHebrew, hasLatin bool

	for _, r := range s {
		switch {
		case r >= 0x0590 && r <= 0x05FF:
			hasHebrew = true
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			hasLatin = true
		}

		if hasHebrew && hasLatin {
			return true
		}
	}

	return false
}

// Reason maps a summary error to the message shown to listeners.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMixedScript):
		return "הטקסט מכיל עברית ואנגלית, נסו בעברית בלבד."
	case errors.Is(err, ErrEmptyTopic):
		return "יש להזין נושא."
	case errors.Is(err, core.ErrUnknownAgeProfile):
		return "קבוצת הגיל שנבחרה אינה מוכרת."
	case errors.Is(err, core.ErrInputRejected):
		return "הבקשה אינה תקינה, בדקו את הנושא ואת אורך הפרק."
	case errors.Is(err, core.ErrTopicNotFound):
		return "לא נמצא ערך מתאים או הערך לא חד-משמעי."
	default:
		return "אירעה שגיאה בשליפת ויקיפדיה. נסו ערך אחר."
	}
}

// WikipediaConfig configures WikipediaSource.
type WikipediaConfig struct {
	// BaseURL overrides the API endpoint, e.g. for tests.
	BaseURL  string
	Language string
	Timeout  time.Duration
}

// WikipediaSource implements core.SummarySource with the MediaWiki action API.
type WikipediaSource struct {
	endpoint   string
	httpClient *http.Client
}

// NewWikipediaSource creates a source for cfg.Language (default Hebrew).
func NewWikipediaSource(cfg WikipediaConfig) *WikipediaSource {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = "https://" + cfg.Language + ".wikipedia.org/w/api.php"
	}

	return &WikipediaSource{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type extractResponse struct {
	Query struct {
		Pages []struct {
			Title     string            `json:"title"`
			Extract   string            `json:"extract"`
			Missing   bool              `json:"missing"`
			Invalid   bool              `json:"invalid"`
			PageProps map[string]string `json:"pageprops"`
		} `json:"pages"`
	} `json:"query"`
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

// Summarize returns the first sentences of the article for topic.
func (w *WikipediaSource) Summarize(ctx context.Context, topic string, sentences int) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrEmptyTopic
	}

	if IsMixedScript(topic) {
		return "", ErrMixedScript
	}

	if sentences <= 0 {
		sentences = DefaultSentences
	}

	text, found, err := w.extract(ctx, topic, sentences)
	if err != nil {
		return "", err
	}

	if found {
		return text, nil
	}

	title, err := w.search(ctx, topic)
	if err != nil {
		return "", err
	}

	text, found, err = w.extract(ctx, title, sentences)
	if err != nil {
		return "", err
	}

	if !found {
		return "", fmt.Errorf("%w: %q", core.ErrTopicNotFound, topic)
	}

	return text, nil
}

func (w *WikipediaSource) extract(ctx context.Context, title string, sentences int) (string, bool, error) {
	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"prop":          {"extracts|pageprops"},
		"exintro":       {"1"},
		"explaintext":   {"1"},
		"exsentences":   {strconv.Itoa(sentences)},
		"redirects":     {"1"},
		"titles":        {title},
	}

	var resp extractResponse
	if err := w.get(ctx, params, &resp); err != nil {
		return "", false, err
	}

	if len(resp.Query.Pages) == 0 {
		return "", false, nil
	}

	page := resp.Query.Pages[0]
	if page.Missing || page.Invalid {
		return "", false, nil
	}

	if _, ok := page.PageProps["disambiguation"]; ok {
		return "", false, fmt.Errorf("%w: %q", ErrAmbiguous, page.Title)
	}

	text := strings.TrimSpace(page.Extract)
	if text == "" {
		return "", false, nil
	}

	return text, true, nil
}

func (w *WikipediaSource) search(ctx context.Context, topic string) (string, error) {
	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"list":          {"search"},
		"srsearch":      {topic},
		"srlimit":       {"1"},
	}

	var resp searchResponse
	if err := w.get(ctx, params, &resp); err != nil {
		return "", err
	}

	if len(resp.Query.Search) == 0 {
		return "", fmt.Errorf("%w: %q", core.ErrTopicNotFound, topic)
	}

	return resp.Query.Search[0].Title, nil
}

func (w *WikipediaSource) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrSummaryUnavailable, err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", ErrSummaryUnavailable, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

		return fmt.Errorf("%w: status %d: %s", ErrSummaryUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", ErrSummaryUnavailable, err)
	}

	return nil
}
