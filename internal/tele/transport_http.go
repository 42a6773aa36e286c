package tele

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Neon18H/DRONEX-AGENT/log2"
)

const (
	registerPath  = "/api/agent/register/"
	telemetryPath = "/api/agent/telemetry/"

	DefaultNetworkTimeout = 10 * time.Second
)

// ErrInsecureEndpoint: the configured origin is not https. Raised at
// construction, before any network attempt. Compare with errors.Cause.
var ErrInsecureEndpoint = errors.New("endpoint scheme must be https")

// transportHTTP maps request/response pairs to classified outcomes.
// It holds no retry logic and no connection state.
type transportHTTP struct {
	log       *log2.Log
	hc        *http.Client
	base      *url.URL
	identity  Identity
	userAgent string
	sessionID string // X-Agent-Session, one uuid per process run
}

type TransportOptions struct {
	BaseURL      string
	Timeout      time.Duration
	BuildVersion string
	// RoundTripper overrides the default transport, tests inject a mock.
	RoundTripper http.RoundTripper
}

func NewTransportHTTP(log *log2.Log, identity Identity, opt TransportOptions) (Transporter, error) {
	u, err := url.Parse(strings.TrimRight(opt.BaseURL, "/"))
	if err != nil {
		return nil, errors.Annotatef(err, "dronex_url=%s", opt.BaseURL)
	}
	if u.Scheme != "https" {
		return nil, errors.Annotatef(ErrInsecureEndpoint, "dronex_url=%s", opt.BaseURL)
	}
	if u.Host == "" {
		return nil, errors.NotValidf("dronex_url=%s missing host", opt.BaseURL)
	}
	timeout := opt.Timeout
	if timeout == 0 {
		timeout = DefaultNetworkTimeout
	}
	version := opt.BuildVersion
	if version == "" {
		version = AgentVersion
	}
	t := &transportHTTP{
		log:       log,
		base:      u,
		identity:  identity,
		userAgent: "DRONEX-Agent/" + version,
		sessionID: uuid.NewString(),
		hc: &http.Client{
			Timeout:   timeout,
			Transport: opt.RoundTripper,
		},
	}
	return t, nil
}

type systemInfo struct {
	Hostname string `json:"hostname"`
	OS       string `json:"os"`
	CPU      string `json:"cpu"`
	NumCPU   int    `json:"num_cpu"`
	RAMMb    uint64 `json:"ram_mb"`
}

// collectSystemInfo probes are best-effort: a failed probe falls back to
// what the runtime knows, registration must not depend on platform quirks.
func collectSystemInfo() systemInfo {
	hostname, _ := os.Hostname()
	si := systemInfo{
		Hostname: hostname,
		OS:       runtime.GOOS + " " + runtime.GOARCH,
		CPU:      fmt.Sprintf("cpu_count:%d", runtime.NumCPU()),
		NumCPU:   runtime.NumCPU(),
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		si.CPU = infos[0].ModelName
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		si.RAMMb = vm.Total / (1 << 20)
	}
	return si
}

type registerRequest struct {
	DroneID      string     `json:"drone_id"`
	AgentVersion string     `json:"agent_version"`
	Mode         string     `json:"mode"`
	System       systemInfo `json:"system"`
}

func (t *transportHTTP) Register(ctx context.Context) (RegisterResult, error) {
	body := registerRequest{
		DroneID:      t.identity.DroneID,
		AgentVersion: AgentVersion,
		Mode:         t.identity.Mode.String(),
		System:       collectSystemInfo(),
	}

	status, respBody, err := t.post(ctx, registerPath, body)
	if err != nil {
		return RegisterResult{Outcome: OutcomeUnreachable, Reason: netReason(err)}, nil
	}
	switch {
	case status >= 200 && status < 300:
		return RegisterResult{Outcome: OutcomeOK, Session: decodeSession(respBody)}, nil
	case status >= 400 && status < 500:
		return RegisterResult{Outcome: OutcomeRejected, Reason: httpReason(status, respBody)}, nil
	default:
		return RegisterResult{Outcome: OutcomeUnreachable, Reason: httpReason(status, respBody)}, nil
	}
}

type telemetryRequest struct {
	Sample
	Session Session `json:"session,omitempty"`
}

func (t *transportHTTP) SendTelemetry(ctx context.Context, s *Sample, session Session) (DeliveryResult, error) {
	if s == nil {
		return DeliveryResult{}, errors.NotValidf("code error SendTelemetry sample=nil")
	}

	status, respBody, err := t.post(ctx, telemetryPath, telemetryRequest{Sample: *s, Session: session})
	if err != nil {
		return DeliveryResult{Outcome: OutcomeUnreachable, Reason: netReason(err)}, nil
	}
	switch {
	case status >= 200 && status < 300:
		return DeliveryResult{Outcome: OutcomeOK}, nil
	case status >= 400 && status < 500:
		return DeliveryResult{Outcome: OutcomeRejected, Reason: httpReason(status, respBody)}, nil
	default:
		return DeliveryResult{Outcome: OutcomeUnreachable, Reason: httpReason(status, respBody)}, nil
	}
}

func (t *transportHTTP) Close() { t.hc.CloseIdleConnections() }

// post marshals body, performs one request and reads the response.
// The returned error means network-level failure, already safe to log.
func (t *transportHTTP) post(ctx context.Context, path string, body interface{}) (int, []byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		// only reachable with a broken wire struct
		panic(fmt.Sprintf("code error telemetry marshal: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base.String()+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.identity.Token.Reveal())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("X-Agent-Session", t.sessionID)

	resp, err := t.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, rb, nil
}

// decodeSession pulls the opaque session marker out of a register response
// body, best-effort: `{"session": ...}` with string or number accepted.
func decodeSession(body []byte) Session {
	var parsed struct {
		Session interface{} `json:"session"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil || parsed.Session == nil {
		return ""
	}
	return Session(fmt.Sprint(parsed.Session))
}

func httpReason(status int, body []byte) string {
	s := strings.TrimSpace(string(body))
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 140 {
		s = s[:140]
	}
	if s == "" {
		return fmt.Sprintf("status=%d", status)
	}
	return fmt.Sprintf("status=%d body=%s", status, s)
}

// netReason is safe to log: the token travels only in a header, so it
// cannot surface through URL errors.
func netReason(err error) string { return err.Error() }
