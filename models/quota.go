package models

// QuotaLimits carries the four quota dimensions. Nil means unlimited for an
// effective limit, or "no override" when used as a per-user override set.
type QuotaLimits struct {
	DailyQueries    *int `json:"daily_query_limit"`
	MonthlyQueries  *int `json:"monthly_query_limit"`
	DailyUploads    *int `json:"daily_upload_limit"`
	MaxUploadSizeMB *int `json:"max_upload_size_mb"`
}

// QuotaSnapshot is the point-in-time view embedded in access tokens and
// returned by the verify endpoint. It is a cache only: the quota enforcer
// always consults the live counters for the authoritative decision.
type QuotaSnapshot struct {
	Limits           QuotaLimits `json:"limits"`
	DailyQueriesUsed int         `json:"daily_queries_used"`
	RemainingCredits *int        `json:"remaining_credits"`
	TotalQueriesUsed int         `json:"total_queries_used"`
	TotalUploads     int         `json:"total_uploads"`
}

// Unlimited reports whether every dimension is unlimited
func (q QuotaLimits) Unlimited() bool {
	return q.DailyQueries == nil && q.MonthlyQueries == nil && q.DailyUploads == nil
}

// IntPtr is a convenience helper for building quota limits
func IntPtr(v int) *int {
	return &v
}
