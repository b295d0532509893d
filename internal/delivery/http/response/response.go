package response

import (
	"time"

	"github.com/user/proxyservice/internal/entity"
	"github.com/user/proxyservice/internal/proxy"
	"github.com/user/proxyservice/pkg/utils"
)

type ProxyResponse struct {
	ID  int64  `json:"id"`
	URL string `json:"url"` // credentials redacted
}

// TargetResponse is a DTO for a pool snapshot, mirroring proxy.PoolSnapshot
type TargetResponse struct {
	TargetID  string          `json:"target_id"`
	Algorithm string          `json:"algorithm"`
	Size      int             `json:"size"`
	Cursor    int             `json:"cursor"`
	Loads     int             `json:"loads"`
	LoadedAt  *time.Time      `json:"loaded_at,omitempty"`
	Units     []string        `json:"units"`
	Proxies   []ProxyResponse `json:"proxies"`
}

func NewTargetResponse(s proxy.PoolSnapshot) TargetResponse {
	resp := TargetResponse{
		TargetID:  s.TargetID,
		Algorithm: s.Algorithm.String(),
		Size:      len(s.Records),
		Cursor:    s.Cursor,
		Loads:     s.Loads,
		Units:     s.Units,
		Proxies:   make([]ProxyResponse, 0, len(s.Records)),
	}
	if resp.Units == nil {
		resp.Units = []string{}
	}
	if !s.LoadedAt.IsZero() {
		at := s.LoadedAt.UTC()
		resp.LoadedAt = &at
	}
	for _, r := range s.Records {
		resp.Proxies = append(resp.Proxies, ProxyResponse{ID: r.ID, URL: utils.RedactURL(r.URL)})
	}
	return resp
}

type TargetExistsResponse struct {
	TargetID string `json:"target_id"`
	Exists   bool   `json:"exists"`
}

type ReportBlockedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type BlockCountsResponse struct {
	TargetID string           `json:"target_id"`
	Counts   map[string]int64 `json:"counts"` // keyed by proxy id
}

type BlockEventResponse struct {
	ID         string    `json:"id"`
	ProxyID    int64     `json:"proxy_id"`
	Reason     string    `json:"reason"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewBlockEventResponse(e *entity.BlockEvent) BlockEventResponse {
	return BlockEventResponse{
		ID:         e.ID.String(),
		ProxyID:    e.ProxyID,
		Reason:     string(e.Reason),
		StatusCode: e.StatusCode,
		Error:      e.Error,
		OccurredAt: e.OccurredAt,
	}
}
