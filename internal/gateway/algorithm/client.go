package algorithm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"adapilot/internal/config"
)

// HTTPSource calls the external analysis engine. The engine nests payloads
// inconsistently across versions ({"data": ...}, {"analysis": ...} or flat),
// so parsing goes through gjson with an envelope unwrap first.
type HTTPSource struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
	timeframe  string
}

func NewHTTPSource(cfg config.AlgorithmConfig) (*HTTPSource, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("algorithm.api_url cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing algorithm.api_url failed: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
		token:      strings.TrimSpace(cfg.APIToken),
		timeframe:  cfg.Timeframe,
	}, nil
}

func (s *HTTPSource) Name() string { return "analysis-engine" }

func (s *HTTPSource) Analyze(ctx context.Context, req Request) (Analysis, error) {
	if req.Timeframe == "" {
		req.Timeframe = s.timeframe
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Analysis{}, err
	}
	endpoint := s.baseURL.JoinPath("analyze")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return Analysis{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return Analysis{}, fmt.Errorf("analysis engine request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Analysis{}, err
	}
	if resp.StatusCode/100 != 2 {
		return Analysis{}, fmt.Errorf("analysis engine returned status %d", resp.StatusCode)
	}
	return ParsePayload(raw)
}

// ParsePayload unwraps, schema-checks and maps a raw engine document.
func ParsePayload(raw []byte) (Analysis, error) {
	if !gjson.ValidBytes(raw) {
		return Analysis{}, fmt.Errorf("analysis payload is not valid json")
	}
	doc := unwrapEnvelope(gjson.ParseBytes(raw))
	if err := validateAgainstSchema(doc); err != nil {
		return Analysis{}, fmt.Errorf("analysis payload rejected: %w", err)
	}

	out := Analysis{
		Direction:      doc.Get("direction").String(),
		Confidence:     doc.Get("confidence").Float(),
		Price:          doc.Get("price").Float(),
		RSI:            firstFloat(doc, "rsi", "indicators.rsi"),
		BBPosition:     firstFloat(doc, "bb_position", "indicators.bb_position"),
		VolumeRatio:    firstFloat(doc, "volume_ratio", "indicators.volume_ratio"),
		BBUpper:        firstFloat(doc, "bb_upper", "indicators.bb_upper"),
		BBLower:        firstFloat(doc, "bb_lower", "indicators.bb_lower"),
		StopLoss:       doc.Get("stop_loss").Float(),
		TakeProfit:     doc.Get("take_profit").Float(),
		PatternHint:    doc.Get("pattern").String(),
		Reasoning:      doc.Get("reasoning").String(),
		Timeframe:      doc.Get("timeframe").String(),
		WinRate:        firstFloat(doc, "win_rate", "algorithm.win_rate"),
		PatternWinRate: firstFloat(doc, "pattern_win_rate", "algorithm.pattern_win_rate"),
		GeneratedAt:    time.Now(),
	}
	return out, nil
}

func unwrapEnvelope(doc gjson.Result) gjson.Result {
	for _, key := range []string{"data", "analysis", "result"} {
		if inner := doc.Get(key); inner.Exists() && inner.IsObject() {
			return inner
		}
	}
	return doc
}

func firstFloat(doc gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() {
			return v.Float()
		}
	}
	return 0
}

func validateAgainstSchema(doc gjson.Result) error {
	var v any
	if err := json.Unmarshal([]byte(doc.Raw), &v); err != nil {
		return err
	}
	return compiledAnalysisSchema.Validate(v)
}
