package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultProxyTimeout = 10 * time.Second

type proxy struct {
	base string
	http *http.Client
}

// NewProxy posts every write to baseURL. An empty baseURL yields a client
// whose calls fail with ConfigurationError.
func NewProxy(baseURL string, httpClient *http.Client) Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return &opClient{strategy: StrategyProxy, exec: misconfigured{err: &ConfigurationError{Strategy: StrategyProxy, Missing: "proxy.url"}}}
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultProxyTimeout}
	}
	return &opClient{strategy: StrategyProxy, exec: &proxy{base: baseURL, http: httpClient}}
}

func (p *proxy) execute(ctx context.Context, op Operation) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch op.Target {
	case TargetUpsertConversation:
		return false, p.post(ctx, op, ConversationsPath, upsertRequest(op.Conversation))
	case TargetPatchConversation:
		return false, p.post(ctx, op, ConversationsPath, patchRequest(op.ConversationID, op.Patch))
	case TargetInsertMessage:
		return false, p.post(ctx, op, MessagesPath, messageRequest(op.Message))
	case TargetPriorMessages:
		return p.prior(ctx, op)
	default:
		return false, &TransportError{Strategy: StrategyProxy, Op: op.Target, Err: errors.Errorf("unknown operation target %q", op.Target)}
	}
}

func (p *proxy) post(ctx context.Context, op Operation, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return &TransportError{Strategy: StrategyProxy, Op: op.Target, Err: errors.Wrap(err, "encode body")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, bytes.NewReader(b))
	if err != nil {
		return &TransportError{Strategy: StrategyProxy, Op: op.Target, Err: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	_, err = p.do(req, op)
	return err
}

func (p *proxy) prior(ctx context.Context, op Operation) (bool, error) {
	q := url.Values{}
	q.Set("session_id", op.SessionID)
	if op.ExcludeMessageID != "" {
		q.Set("exclude_id", op.ExcludeMessageID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+MessagesPath+"?"+q.Encode(), nil)
	if err != nil {
		return false, &TransportError{Strategy: StrategyProxy, Op: op.Target, Err: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Accept", "application/json")
	body, err := p.do(req, op)
	if err != nil {
		return false, err
	}
	var resp PriorMessagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, &TransportError{Strategy: StrategyProxy, Op: op.Target, Err: errors.Wrap(err, "decode response")}
	}
	return resp.HasPrior, nil
}

func (p *proxy) do(req *http.Request, op Operation) ([]byte, error) {
	resp, err := p.http.Do(req)
	if err != nil {
		log.Debug().Str("component", "persistence").Str("strategy", string(StrategyProxy)).Str("op", op.String()).Err(err).Msg("request failed")
		return nil, &TransportError{Strategy: StrategyProxy, Op: op.Target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &TransportError{Strategy: StrategyProxy, Op: op.Target, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	return body, nil
}
