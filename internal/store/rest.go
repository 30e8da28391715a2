package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RESTStore talks to a Supabase PostgREST endpoint with the service
// role key. One HTTP round trip per call, no retry or backoff.
type RESTStore struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewRESTStore(baseURL, serviceKey string) *RESTStore {
	return &RESTStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (s *RESTStore) Select(ctx context.Context, table string, columns []string, q Query) ([]Row, error) {
	query := url.Values{}
	query.Set("select", strings.Join(columns, ","))
	encodeQuery(query, q)

	req, err := s.newRequest(ctx, http.MethodGet, table, query, nil)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := s.do(req, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *RESTStore) Insert(ctx context.Context, table string, payload Row) (Row, error) {
	req, err := s.newRequest(ctx, http.MethodPost, table, nil, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")
	var rows []Row
	if err := s.do(req, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: insert into %s returned no rows", ErrUnavailable, table)
	}
	return rows[0], nil
}

func (s *RESTStore) Upsert(ctx context.Context, table string, payload Row, conflictKeys ...string) error {
	query := url.Values{}
	query.Set("on_conflict", strings.Join(conflictKeys, ","))
	req, err := s.newRequest(ctx, http.MethodPost, table, query, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")
	return s.do(req, nil)
}

func (s *RESTStore) Patch(ctx context.Context, table string, q Query, payload Row) error {
	query := url.Values{}
	encodeQuery(query, q)
	req, err := s.newRequest(ctx, http.MethodPatch, table, query, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")
	return s.do(req, nil)
}

func (s *RESTStore) newRequest(ctx context.Context, method, table string, query url.Values, payload Row) (*http.Request, error) {
	endpoint := s.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (s *RESTStore) do(req *http.Request, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

// encodeQuery renders a Query in PostgREST syntax: col=eq.value pairs,
// order=col.asc|desc and limit=n.
func encodeQuery(query url.Values, q Query) {
	for _, cond := range q.Eq {
		query.Set(cond.Column, "eq."+condValue(cond.Value))
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		query.Set("order", q.OrderBy+"."+dir)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
}

func condValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
