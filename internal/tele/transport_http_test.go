package tele

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neon18H/DRONEX-AGENT/helpers"
	"github.com/Neon18H/DRONEX-AGENT/log2"
)

func testIdentity() Identity {
	return Identity{DroneID: "drone-7", Token: NewSecret(leakCanary), Mode: ModeSimulation}
}

func testTransport(t testing.TB, mock *helpers.MockHTTP) Transporter {
	trans, err := NewTransportHTTP(log2.NewTest(t, log2.LDebug), testIdentity(), TransportOptions{
		BaseURL:      "https://dronex.test",
		Timeout:      time.Second,
		RoundTripper: mock,
	})
	require.NoError(t, err)
	return trans
}

func TestTransportInsecureEndpoint(t *testing.T) {
	t.Parallel()

	mock := &helpers.MockHTTP{}
	_, err := NewTransportHTTP(log2.NewTest(t, log2.LDebug), testIdentity(), TransportOptions{
		BaseURL:      "http://dronex.test",
		RoundTripper: mock,
	})
	require.Error(t, err)
	assert.Equal(t, ErrInsecureEndpoint, errors.Cause(err))
	assert.Zero(t, mock.CallCount(), "no network attempt for insecure endpoint")
	assert.NotContains(t, err.Error(), leakCanary)
}

func TestTransportRegisterOk(t *testing.T) {
	t.Parallel()

	var seen *http.Request
	var seenBody []byte
	mock := &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
		seen = req
		seenBody, _ = io.ReadAll(req.Body)
		return mockResponse(200, `{"session": "sess-42"}`), nil
	}}
	trans := testTransport(t, mock)

	res, err := trans.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, Session("sess-42"), res.Session)

	require.NotNil(t, seen)
	assert.Equal(t, http.MethodPost, seen.Method)
	assert.Equal(t, "https://dronex.test/api/agent/register/", seen.URL.String())
	assert.Equal(t, "Bearer "+leakCanary, seen.Header.Get("Authorization"))
	assert.Equal(t, "application/json", seen.Header.Get("Content-Type"))
	assert.Equal(t, "DRONEX-Agent/"+AgentVersion, seen.Header.Get("User-Agent"))
	assert.NotEmpty(t, seen.Header.Get("X-Agent-Session"))
	assert.NotContains(t, seen.URL.String(), leakCanary, "token never travels in the URL")

	var body registerRequest
	require.NoError(t, json.Unmarshal(seenBody, &body))
	assert.Equal(t, "drone-7", body.DroneID)
	assert.Equal(t, AgentVersion, body.AgentVersion)
	assert.Equal(t, "SIMULATION", body.Mode)
	assert.NotEmpty(t, body.System.CPU)
	assert.Equal(t, runtime.NumCPU(), body.System.NumCPU)
	assert.Greater(t, body.System.RAMMb, uint64(0), "memory probe must report total RAM")
	assert.NotContains(t, string(seenBody), leakCanary, "token never travels in the body")
}

func TestTransportRegisterSessionNumber(t *testing.T) {
	t.Parallel()

	mock := &helpers.MockHTTP{Fun: func(*http.Request) (*http.Response, error) {
		return mockResponse(201, `{"session": 12345}`), nil
	}}
	trans := testTransport(t, mock)

	res, err := trans.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, Session("12345"), res.Session)
}

func TestTransportRegisterEmptyBody(t *testing.T) {
	t.Parallel()

	mock := &helpers.MockHTTP{}
	trans := testTransport(t, mock)

	res, err := trans.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, Session(""), res.Session, "empty session marker is valid")
}

func TestTransportClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		body    string
		netErr  error
		outcome Outcome
	}{
		{"unauthorized", 401, `{"detail":"invalid token"}`, nil, OutcomeRejected},
		{"forbidden", 403, "", nil, OutcomeRejected},
		{"server-error", 500, "boom", nil, OutcomeUnreachable},
		{"bad-gateway", 502, "", nil, OutcomeUnreachable},
		{"conn-refused", 0, "", errors.New("dial tcp: connection refused"), OutcomeUnreachable},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			mock := &helpers.MockHTTP{Err: c.netErr}
			if c.netErr == nil {
				mock.Fun = func(*http.Request) (*http.Response, error) {
					return mockResponse(c.status, c.body), nil
				}
			}
			trans := testTransport(t, mock)

			reg, err := trans.Register(context.Background())
			require.NoError(t, err, "expected outcomes never map to Go errors")
			assert.Equal(t, c.outcome, reg.Outcome)
			assert.NotContains(t, reg.Reason, leakCanary)

			sample := Sample{DroneID: "drone-7", Timestamp: time.Now()}
			del, err := trans.SendTelemetry(context.Background(), &sample, "sess")
			require.NoError(t, err)
			assert.Equal(t, c.outcome, del.Outcome)
			assert.NotContains(t, del.Reason, leakCanary)
		})
	}
}

func TestTransportTimeoutIsUnreachable(t *testing.T) {
	t.Parallel()

	mock := &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
		// honor both cancel paths, http.Client uses the legacy channel
		// for custom RoundTrippers
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-req.Cancel:
			return nil, errors.Timeoutf("request canceled")
		case <-time.After(5 * time.Second):
			return mockResponse(200, ""), nil
		}
	}}
	trans, err := NewTransportHTTP(log2.NewTest(t, log2.LDebug), testIdentity(), TransportOptions{
		BaseURL:      "https://dronex.test",
		Timeout:      30 * time.Millisecond,
		RoundTripper: mock,
	})
	require.NoError(t, err)

	res, err := trans.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnreachable, res.Outcome)
}

func TestTransportSendTelemetryBody(t *testing.T) {
	t.Parallel()

	var seenBody []byte
	mock := &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
		seenBody, _ = io.ReadAll(req.Body)
		assert.Equal(t, "https://dronex.test/api/agent/telemetry/", req.URL.String())
		return mockResponse(200, ""), nil
	}}
	trans := testTransport(t, mock)

	sample := Sample{
		DroneID: "drone-7", Lat: 4.658, Lng: -74.093, Alt: 100.5,
		Battery: 88.25, Status: "IN_OPERATION", Timestamp: time.Now(),
	}
	res, err := trans.SendTelemetry(context.Background(), &sample, "sess-42")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(seenBody, &wire))
	assert.Equal(t, "drone-7", wire["drone_id"])
	assert.Equal(t, 88.25, wire["battery"])
	assert.Equal(t, "sess-42", wire["session"])
	assert.NotContains(t, string(seenBody), leakCanary)
}

func mockResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}
