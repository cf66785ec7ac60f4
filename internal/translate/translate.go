package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"babelchat/internal/stats"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/sync/singleflight"
)

const (
	// AutoLang is the sentinel language tag meaning "no translation" as
	// a target and "let the service detect" as a source.
	AutoLang = "auto"

	MetricTranslationHits   = "TranslationHits"
	MetricTranslationMisses = "TranslationMisses"
	MetricTranslationErrors = "TranslationErrors"
)

// Translator memoizes calls to an external translate endpoint. Any
// failure of the external call degrades to the original text; a send
// path must never fail because translation did.
//
// The cache is keyed by (text, source, target) and is not evicted
// within process lifetime. An LRU bound is the obvious follow-up once
// memory pressure shows up.
type Translator struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	log      *log.Logger
	stats    stats.StatsProvider

	mu    sync.RWMutex
	cache map[string]string
	group singleflight.Group
}

func New(endpoint string, timeout time.Duration, logger *log.Logger, su stats.StatsProvider) *Translator {
	su.RegisterMetric(MetricTranslationHits)
	su.RegisterMetric(MetricTranslationMisses)
	su.RegisterMetric(MetricTranslationErrors)

	return &Translator{
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  timeout,
		client:   &http.Client{},
		log:      logger,
		stats:    su,
		cache:    make(map[string]string),
	}
}

// Translate rewrites text into target, detecting the source language
// first. It returns text unchanged when no translation is needed or
// possible.
func (t *Translator) Translate(ctx context.Context, text, target string) string {
	return t.TranslateFrom(ctx, text, "", target)
}

// TranslateFrom is Translate with a known source language. An empty
// source triggers detection.
func (t *Translator) TranslateFrom(ctx context.Context, text, source, target string) string {
	target = strings.ToLower(strings.TrimSpace(target))
	if text == "" || target == "" || target == AutoLang {
		return text
	}

	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		source = DetectLanguage(text)
	}
	if source == target {
		return text
	}

	key := text + "\x00" + source + "\x00" + target

	t.mu.RLock()
	cached, ok := t.cache[key]
	t.mu.RUnlock()
	if ok {
		t.stats.Incr(MetricTranslationHits)
		return cached
	}
	t.stats.Incr(MetricTranslationMisses)

	// collapse concurrent identical misses into one upstream call
	res, err, _ := t.group.Do(key, func() (any, error) {
		t.mu.RLock()
		cached, ok := t.cache[key]
		t.mu.RUnlock()
		if ok {
			return cached, nil
		}

		translated, err := t.translateRemote(ctx, text, source, target)
		if err != nil {
			return nil, err
		}

		t.mu.Lock()
		t.cache[key] = translated
		t.mu.Unlock()

		return translated, nil
	})
	if err != nil {
		t.stats.Incr(MetricTranslationErrors)
		t.log.Printf("translate to %q: %v", target, err)
		return text
	}

	return res.(string)
}

// CacheLen reports the number of memoized translations.
func (t *Translator) CacheLen() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.cache)
}

// DetectLanguage returns the ISO 639-1 tag for text, or AutoLang when
// detection is not reliable enough to trust.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return AutoLang
	}

	tag := info.Lang.Iso6391()
	if tag == "" {
		return AutoLang
	}
	return tag
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

func (t *Translator) translateRemote(ctx context.Context, text, source, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	body, err := json.Marshal(translateRequest{
		Q:      text,
		Source: source,
		Target: target,
		Format: "text",
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call translate service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate service returned %s", resp.Status)
	}

	var tr translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if tr.TranslatedText == "" {
		return "", fmt.Errorf("translate service returned empty text")
	}

	return tr.TranslatedText, nil
}
