package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

const (
	HTTPCapabilityName = "http_request"

	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 5 << 20
)

// RequestTranslator turns free-form text into a RequestSpec when the
// instruction does not spell out a URL.
type RequestTranslator interface {
	TranslateRequest(ctx context.Context, instruction string) (RequestSpec, error)
}

type HTTPConfig struct {
	Headers         map[string]string
	Timeout         time.Duration
	UserAgent       string
	MaxSummaryChars int
}

// HTTPCapability performs HTTP interactions described in text. It never
// retries; retry policy belongs to the orchestrator.
type HTTPCapability struct {
	cfg        HTTPConfig
	translator RequestTranslator
}

func NewHTTPCapability(cfg HTTPConfig, translator RequestTranslator) *HTTPCapability {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "conductor/1.0"
	}
	return &HTTPCapability{cfg: cfg, translator: translator}
}

func (h *HTTPCapability) Name() string {
	return HTTPCapabilityName
}

func (h *HTTPCapability) Description() string {
	return "Perform HTTP/API interactions: GET, POST, PUT, PATCH, DELETE, inspect JSON, check status codes. Input: a description of the API call. Output: a summary of the response."
}

func (h *HTTPCapability) Kind() Kind {
	return KindRequest
}

// Open creates a client with its own cookie jar, so cookies set by one step are
// visible to the following steps of the same session.
func (h *HTTPCapability) Open(ctx context.Context) (Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, Wrap(BackendUnavailable, err, "failed to create cookie jar")
	}
	return &httpSession{
		capability: h,
		client:     &http.Client{Timeout: h.cfg.Timeout, Jar: jar},
	}, nil
}

type httpSession struct {
	capability *HTTPCapability
	client     *http.Client
}

func (s *httpSession) Invoke(ctx context.Context, instruction string) (string, error) {
	spec, ok := ParseRequest(instruction)
	if !ok {
		if s.capability.translator == nil {
			return "", Errorf(InvalidInstruction, "no URL found in instruction and no translator configured")
		}
		translated, err := s.capability.translator.TranslateRequest(ctx, instruction)
		if err != nil {
			return "", Classify(err, InvalidInstruction)
		}
		spec = translated
	}
	return s.do(ctx, spec)
}

func (s *httpSession) do(ctx context.Context, spec RequestSpec) (string, error) {
	if spec.URL == "" {
		return "", Errorf(InvalidInstruction, "request has no URL")
	}
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}

	var body io.Reader
	if spec.Body != "" {
		body = strings.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(spec.Method), spec.URL, body)
	if err != nil {
		return "", Wrap(InvalidInstruction, err, "failed to create request")
	}
	req.Header.Set("User-Agent", s.capability.cfg.UserAgent)
	if spec.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range s.capability.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", Wrap(Timeout, ctx.Err(), "%s %s", req.Method, spec.URL)
		}
		if isTimeout(err) {
			return "", Wrap(Timeout, err, "%s %s did not answer within %s", req.Method, spec.URL, s.client.Timeout)
		}
		return "", Wrap(RemoteFailure, err, "%s %s failed", req.Method, spec.URL)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return "", Wrap(Timeout, err, "timed out reading response from %s", spec.URL)
		}
		return "", Wrap(RemoteFailure, err, "failed to read response from %s", spec.URL)
	}

	extracted, execErr := checkExpectations(spec, resp.StatusCode, data)
	if execErr != nil {
		return "", execErr
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s -> %s", req.Method, spec.URL, resp.Status)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		fmt.Fprintf(&b, " (%s, %d bytes)", ct, len(data))
	}
	for _, line := range extracted {
		b.WriteString("\n")
		b.WriteString(line)
	}
	if len(data) > 0 && req.Method != http.MethodHead {
		b.WriteString("\n\n")
		b.WriteString(summarizeBody(resp.Header.Get("Content-Type"), data, spec.URL, s.capability.cfg.MaxSummaryChars))
	}
	return b.String(), nil
}

func (s *httpSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// isTimeout reports whether err comes from the client timeout or a network
// deadline rather than from the remote side.
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
