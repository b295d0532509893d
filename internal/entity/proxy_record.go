package entity

// ProxyRecord is a single proxy issued by the inventory service.
// URL has the form scheme://[user:pass@]host[:port].
type ProxyRecord struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// ProxyIDs returns the ids of the given records in order.
func ProxyIDs(records []ProxyRecord) []int64 {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
