package request

type ReportBlockedRequest struct {
	ProxyID *int64 `json:"proxy_id"`
}
