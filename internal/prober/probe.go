package prober

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// ErrProbe wraps endpoint probing failures (network, non-2xx on both verbs).
var ErrProbe = errors.New("probe failed")

const maxProbeBody = 1 << 20 // 1MB

// Probe requests the endpoint (GET, then POST with an empty body) and
// interprets the response for stock state.
func (p *Prober) Probe(ctx context.Context, endpoint string) (plugin.Signal, error) {
	body, contentType, err := p.request(ctx, http.MethodGet, endpoint)
	if err != nil {
		body, contentType, err = p.request(ctx, http.MethodPost, endpoint)
	}
	if err != nil {
		return plugin.Unknown(MethodProber, err.Error()), fmt.Errorf("%w: %s: %v", ErrProbe, endpoint, err)
	}

	sig := p.interpret(body, contentType)
	sig.Evidence = endpoint + ": " + sig.Evidence
	p.log.Debug("probed endpoint",
		zap.String("endpoint", endpoint),
		zap.String("status", string(sig.Status)),
		zap.Float64("confidence", sig.Confidence))
	return sig, nil
}

func (p *Prober) request(ctx context.Context, method, endpoint string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "application/json, text/xml, text/plain, */*")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// interpret runs the parse cascade: JSON, then XML, then CSV, then plain
// text. Content type only orders the attempts; a JSON body served as
// text/plain still parses.
func (p *Prober) interpret(body []byte, contentType string) plugin.Signal {
	ct := strings.ToLower(contentType)

	if sig, ok := parseJSON(body); ok {
		return sig
	}
	if sig, ok := parseXML(body); ok {
		return sig
	}
	if strings.Contains(ct, "csv") || looksLikeCSV(body) {
		if sig, ok := parseCSV(body); ok {
			return sig
		}
	}
	return p.parseText(string(body))
}
