package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"driftregistry.org/internal/audit"
)

func seedAuditRecords(t *testing.T, api *apiClient) {
	t.Helper()
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	var batch []audit.Record
	for i := 0; i < 6; i++ {
		subject := "alice"
		if i%2 == 1 {
			subject = "bob"
		}
		batch = append(batch, audit.Record{
			ID:       string(rune('a' + i)),
			Time:     base.Add(time.Duration(i) * time.Minute),
			Subject:  subject,
			Resource: "acme/api",
			Allow:    i%2 == 0,
		})
	}
	if err := api.sink.Write(context.Background(), batch); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestAuditEndpointFiltersBySubject(t *testing.T) {
	api := newTestAPI(t)
	seedAuditRecords(t, api)

	resp := api.get("/v1/audit", url.Values{"subject": {"alice"}}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	result := decode[audit.Result](t, resp)
	if len(result.Records) != 3 {
		t.Fatalf("records = %d", len(result.Records))
	}
	for _, rec := range result.Records {
		if rec.Subject != "alice" {
			t.Fatalf("filter leaked: %+v", rec)
		}
	}
}

func TestAuditEndpointPagination(t *testing.T) {
	api := newTestAPI(t)
	seedAuditRecords(t, api)

	resp := api.get("/v1/audit", url.Values{"page": {"1"}, "page_size": {"4"}}, nil)
	result := decode[audit.Result](t, resp)
	if len(result.Records) != 4 {
		t.Fatalf("page 1 = %d records", len(result.Records))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("paging: %+v", result.Paging)
	}

	resp = api.get("/v1/audit", url.Values{"page": {"2"}, "page_size": {"4"}}, nil)
	result = decode[audit.Result](t, resp)
	if len(result.Records) != 2 || result.Paging.HasNext {
		t.Fatalf("page 2: %d records, paging %+v", len(result.Records), result.Paging)
	}
}

func TestAuditEndpointValidation(t *testing.T) {
	api := newTestAPI(t)

	cases := []url.Values{
		{"allow": {"maybe"}},
		{"from": {"yesterday"}},
		{"to": {"tomorrow"}},
		{"page": {"zero"}},
		{"page": {"-1"}},
		{"page_size": {"many"}},
	}
	for i, params := range cases {
		resp := api.get("/v1/audit", params, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("case %d: status = %d", i, resp.StatusCode)
		}
	}

	resp := api.post("/v1/audit", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}
}

func TestAuditEndpointAllowFilter(t *testing.T) {
	api := newTestAPI(t)
	seedAuditRecords(t, api)

	resp := api.get("/v1/audit", url.Values{"allow": {"false"}}, nil)
	result := decode[audit.Result](t, resp)
	if len(result.Records) != 3 {
		t.Fatalf("denied records = %d", len(result.Records))
	}
	for _, rec := range result.Records {
		if rec.Allow {
			t.Fatalf("allow filter leaked: %+v", rec)
		}
	}
}
