package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type orderLine struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type orderPayload struct {
	Items []orderLine `json:"items"`
}

// orderEcho отвечает позициями заказа и их суммарным количеством.
func orderEcho(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ce := r.Header.Get("Content-Encoding"); ce != "" {
			t.Errorf("request still marked as %q", ce)
		}

		var in orderPayload
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		units := 0
		for _, it := range in.Items {
			units += it.Quantity
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"items": in.Items, "units": units})
	}
}

func orderBody(t *testing.T, lines int) []byte {
	t.Helper()
	in := orderPayload{}
	for i := 0; i < lines; i++ {
		in.Items = append(in.Items, orderLine{Product: "7b0b3a52-8f0e-4a4b-9a51-3d2b1f2c6e1d", Quantity: 2})
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal order: %v", err)
	}
	return b
}

func gzipped(t *testing.T, b []byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(b); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func decodeOrderResponse(t *testing.T, res *http.Response) (items int, units int) {
	t.Helper()
	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(res.Body)
		if err != nil {
			t.Fatalf("new gzip reader: %v", err)
		}
		defer gr.Close()
		r = gr
	}

	var out struct {
		Items []orderLine `json:"items"`
		Units int         `json:"units"`
	}
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return len(out.Items), out.Units
}

func TestGzipMiddleware_OrderPayloads(t *testing.T) {
	tests := []struct {
		name           string
		lines          int
		gzipRequest    bool
		acceptEncoding string
		wantEncoding   string
	}{
		{name: "compressed order body", lines: 3, gzipRequest: true, wantEncoding: ""},
		{name: "compressed order body and response", lines: 40, gzipRequest: true, acceptEncoding: "gzip", wantEncoding: "gzip"},
		{name: "plain body, compressed json response", lines: 40, acceptEncoding: "gzip", wantEncoding: "gzip"},
		{name: "plain body and response", lines: 1, wantEncoding: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := orderBody(t, tt.lines)
			var body io.Reader = bytes.NewReader(raw)
			if tt.gzipRequest {
				body = gzipped(t, raw)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/orders", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()

			GzipMiddleware(orderEcho(t)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != http.StatusCreated {
				t.Fatalf("status = %d, body %q", res.StatusCode, w.Body.String())
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("content-encoding = %q, want %q", ce, tt.wantEncoding)
			}
			items, units := decodeOrderResponse(t, res)
			if items != tt.lines || units != 2*tt.lines {
				t.Fatalf("items = %d units = %d, want %d and %d", items, units, tt.lines, 2*tt.lines)
			}
		})
	}
}

func TestGzipMiddleware_SkipsBinaryResponses(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 512)...)
	h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))

	req := httptest.NewRequest(http.MethodGet, "/img/front.png", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if ce := w.Header().Get("Content-Encoding"); ce != "" {
		t.Fatalf("image compressed with %q", ce)
	}
	if !bytes.Equal(w.Body.Bytes(), png) {
		t.Fatalf("image body altered")
	}
}

func TestGzipMiddleware_InvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(orderBody(t, 1)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()

	GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), `"error":"Invalid gzip body"`) {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}
