package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// BatchRequest is one geocoding request read from the source topic.
// Either Query or both Lat and Lon must be set.
type BatchRequest struct {
	ID     string            `json:"id"`
	Query  string            `json:"query,omitempty"`
	Lat    *float64          `json:"lat,omitempty"`
	Lon    *float64          `json:"lon,omitempty"`
	Region string            `json:"region,omitempty"`
	Bounds *Bounds           `json:"bounds,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// BatchResponse is the result of one BatchRequest.
type BatchResponse struct {
	ID             string         `json:"id"`
	Query          string         `json:"query"`
	Classification Classification `json:"classification,omitempty"`
	Results        []Result       `json:"results"`
	Error          string         `json:"error,omitempty"`
	ProcessedAt    time.Time      `json:"processed_at"`
}

// ParseBatchRequest decodes a raw source message into a BatchRequest.
func ParseBatchRequest(raw RawEvent) (BatchRequest, error) {
	var req BatchRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return BatchRequest{}, fmt.Errorf("unmarshal batch request: %w", err)
	}
	if req.ID == "" {
		req.ID = string(raw.Key)
	}
	if (req.Lat == nil) != (req.Lon == nil) {
		return BatchRequest{}, errors.New("batch request must set both lat and lon")
	}
	return req, nil
}

// Search returns the query and options described by the request.
func (r BatchRequest) Search() (Query, Options) {
	opts := Options{Bounds: r.Bounds, Region: r.Region, Extra: r.Extra}
	if r.Lat != nil && r.Lon != nil {
		return Point(*r.Lat, *r.Lon), opts
	}
	return Text(r.Query), opts
}

// NewBatchResponse builds the response for req, stamped with the package clock.
// A nil results slice is normalized to empty.
func NewBatchResponse(req BatchRequest, results []Result, searchErr error) BatchResponse {
	q, _ := req.Search()
	resp := BatchResponse{
		ID:          req.ID,
		Query:       q.String(),
		Results:     results,
		ProcessedAt: clock.Now().UTC(),
	}
	if !IsBlank(q) {
		resp.Classification = Classify(q)
	}
	if resp.Results == nil {
		resp.Results = []Result{}
	}
	if searchErr != nil {
		resp.Error = searchErr.Error()
	}
	return resp
}

// SerializeBatchResponse marshals a response into an OutputEvent keyed by request ID.
func SerializeBatchResponse(resp BatchResponse) (OutputEvent, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize batch response: %w", err)
	}
	status := "ok"
	if resp.Error != "" {
		status = "error"
	}
	return OutputEvent{
		Key:   []byte(resp.ID),
		Value: data,
		Headers: map[string]string{
			"classification": string(resp.Classification),
			"status":         status,
			"processed_at":   resp.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
