package catalog

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// PromptLimit caps how many properties are enumerated in a model prompt.
// Matching always sees the full snapshot.
const PromptLimit = 50

// Source supplies an immutable catalog snapshot per request.
type Source interface {
	Snapshot(ctx context.Context) ([]Property, error)
}

// StaticSource serves a fixed list.
type StaticSource []Property

func (s StaticSource) Snapshot(context.Context) ([]Property, error) {
	return append([]Property(nil), s...), nil
}

// Excerpt returns at most limit properties in catalog order.
func Excerpt(props []Property, limit int) []Property {
	if limit <= 0 || len(props) <= limit {
		return props
	}
	return props[:limit]
}

// Decode parses a YAML or JSON document holding either a list of properties or
// an object with a "properties" list. Records that fail validation are skipped.
func Decode(data []byte) ([]Property, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var raws []rawProperty
	if data[0] == '[' || data[0] == '-' {
		if err := yaml.Unmarshal(data, &raws); err != nil {
			return nil, errors.Wrap(err, "catalog: decode list")
		}
	} else {
		var wrapped struct {
			Properties []rawProperty `yaml:"properties"`
		}
		if err := yaml.Unmarshal(data, &wrapped); err != nil {
			return nil, errors.Wrap(err, "catalog: decode document")
		}
		raws = wrapped.Properties
	}

	out := make([]Property, 0, len(raws))
	for i, r := range raws {
		p, err := r.toProperty()
		if err != nil {
			log.Warn().Err(err).Str("component", "catalog").Int("index", i).Msg("skipping invalid catalog record")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// FileSource loads a catalog file once and serves it from memory.
type FileSource struct {
	path  string
	once  sync.Once
	props []Property
	err   error
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: strings.TrimSpace(path)}
}

func (s *FileSource) Snapshot(context.Context) ([]Property, error) {
	if s == nil || s.path == "" {
		return nil, errors.New("catalog: file source has no path")
	}
	s.once.Do(func() {
		data, err := os.ReadFile(s.path)
		if err != nil {
			s.err = errors.Wrapf(err, "catalog: read %s", s.path)
			return
		}
		s.props, s.err = Decode(data)
		if s.err == nil {
			log.Info().Str("component", "catalog").Str("path", s.path).Int("count", len(s.props)).Msg("loaded catalog")
		}
	})
	if s.err != nil {
		return nil, s.err
	}
	return append([]Property(nil), s.props...), nil
}

// HTTPSource fetches the catalog from the external listing service on every
// snapshot.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{URL: strings.TrimSpace(url), Client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSource) Snapshot(ctx context.Context) ([]Property, error) {
	if s == nil || s.URL == "" {
		return nil, errors.New("catalog: http source has no url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: build request")
	}
	req.Header.Set("Accept", "application/json")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: fetch")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("catalog: listing service returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, errors.Wrap(err, "catalog: read body")
	}
	return Decode(data)
}
