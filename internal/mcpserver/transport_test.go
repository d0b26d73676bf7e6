package mcpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAcceptsEventStream(t *testing.T) {
	tests := []struct {
		name   string
		accept []string
		want   bool
	}{
		{name: "event stream", accept: []string{"text/event-stream"}, want: true},
		{name: "wildcard", accept: []string{"*/*"}, want: true},
		{name: "text wildcard", accept: []string{"text/*"}, want: true},
		{name: "json only", accept: []string{"application/json"}, want: false},
		{name: "list with event stream", accept: []string{"application/json, text/event-stream"}, want: true},
		{name: "multiple headers with quality", accept: []string{"application/json", "text/event-stream;q=0.9"}, want: true},
		{name: "multiple headers without match", accept: []string{"application/json", "application/xml"}, want: false},
		{name: "no header", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
			for _, v := range tc.accept {
				req.Header.Add("Accept", v)
			}
			if got := acceptsEventStream(req); got != tc.want {
				t.Errorf("acceptsEventStream = %v, want %v", got, tc.want)
			}
		})
	}
}
