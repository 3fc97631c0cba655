package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	contractx "github.com/vbfalcao/finassist/agent/contract"
)

var ErrInvalidMemoryKey = errors.New("user id or session id is empty")

const (
	defaultKeyPrefix     = "finassist:memory:"
	defaultTTL           = 24 * time.Hour
	maxResponseSizeBytes = 2 << 20
)

// StoreOption customizes UpstashRedisFactory.
type StoreOption func(*UpstashRedisFactory)

func WithKeyPrefix(prefix string) StoreOption {
	return func(f *UpstashRedisFactory) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			f.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(f *UpstashRedisFactory) {
		f.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(f *UpstashRedisFactory) {
		if client != nil {
			f.httpClient = client
		}
	}
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// UpstashRedisFactory keeps one Redis list per (user, session) compound key,
// reached through the Upstash REST API.
type UpstashRedisFactory struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewUpstashRedisFactory(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisFactory, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	factory := &UpstashRedisFactory{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultKeyPrefix,
		ttl:        defaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	if factory.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return factory, nil
}

func (f *UpstashRedisFactory) Memory(userID, sessionID string) contractx.Memory {
	return &redisMemory{
		factory:   f,
		userID:    strings.TrimSpace(userID),
		sessionID: strings.TrimSpace(sessionID),
	}
}

type redisMemory struct {
	factory   *UpstashRedisFactory
	userID    string
	sessionID string
}

func (m *redisMemory) key() (string, error) {
	if m.userID == "" || m.sessionID == "" {
		return "", ErrInvalidMemoryKey
	}
	return m.factory.keyPrefix + m.userID + ":" + m.sessionID, nil
}

func (m *redisMemory) Append(ctx context.Context, entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil
	}
	key, err := m.key()
	if err != nil {
		return err
	}
	if _, err := m.factory.exec(ctx, []any{"RPUSH", key, entry}); err != nil {
		return err
	}
	if m.factory.ttl > 0 {
		_, err = m.factory.exec(ctx, []any{"EXPIRE", key, ttlSeconds(m.factory.ttl)})
	}
	return err
}

// Search ranks stored entries by token overlap with the query and returns the
// best matches, newest first among ties.
func (m *redisMemory) Search(ctx context.Context, query string, limit int) ([]string, error) {
	key, err := m.key()
	if err != nil {
		return nil, err
	}
	resp, err := m.factory.exec(ctx, []any{"LRANGE", key, 0, -1})
	if err != nil {
		return nil, err
	}

	var entries []string
	result := bytes.TrimSpace(resp.Result)
	if len(result) > 0 && !bytes.Equal(result, []byte("null")) {
		if err := json.Unmarshal(result, &entries); err != nil {
			return nil, fmt.Errorf("decode memory entries: %w", err)
		}
	}
	return rankByOverlap(entries, query, limit), nil
}

func (m *redisMemory) Clear(ctx context.Context) error {
	key, err := m.key()
	if err != nil {
		return err
	}
	_, err = m.factory.exec(ctx, []any{"DEL", key})
	return err
}

func (f *UpstashRedisFactory) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}

// rankByOverlap scores entries by shared lowercase tokens with the query.
// Entries with zero overlap are dropped.
func rankByOverlap(entries []string, query string, limit int) []string {
	if limit <= 0 {
		limit = len(entries)
	}

	queryTokens := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		queryTokens[tok] = true
	}

	type scored struct {
		entry string
		score int
		pos   int
	}
	var matches []scored
	for i, entry := range entries {
		score := 0
		for _, tok := range strings.Fields(strings.ToLower(entry)) {
			if queryTokens[tok] {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{entry: entry, score: score, pos: i})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].pos > matches[j].pos
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.entry)
	}
	return out
}
