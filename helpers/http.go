package helpers

import (
	"bufio"
	"bytes"
	"net/http"
	"sync/atomic"
)

// MockHTTP is a http.RoundTripper returning canned responses.
// Calls counts round trips, so tests can assert no network was attempted.
type MockHTTP struct {
	Fun    func(*http.Request) (*http.Response, error)
	Header []byte
	Body   []byte
	Err    error
	Calls  int32
}

func (m *MockHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&m.Calls, 1)
	if m.Fun != nil {
		return m.Fun(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	header := m.Header
	if header == nil {
		header = []byte("HTTP/1.0 200 OK\r\n\r\n")
	}
	rb := make([]byte, 0, len(header)+len(m.Body))
	rb = append(rb, header...)
	rb = append(rb, m.Body...)
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(rb)), req)
}

func (m *MockHTTP) CallCount() int { return int(atomic.LoadInt32(&m.Calls)) }
