package contracts

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Status string       `json:"status"`
	Error  ErrorPayload `json:"error"`
}

type PutCacheRequest struct {
	Value      string `json:"value"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

type CacheEntryResponse struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

type DeleteCacheResponse struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

type InvalidateCacheRequest struct {
	Keys []string `json:"keys"`
}

type InvalidateCacheResponse struct {
	InvalidatedCount int64 `json:"invalidated_count"`
}

type RateLimitCheckRequest struct {
	Scope string `json:"scope"`
	Key   string `json:"key"`
}

type RateLimitDecisionResponse struct {
	Scope        string `json:"scope"`
	Key          string `json:"key"`
	Allowed      bool   `json:"allowed"`
	Limit        int    `json:"limit"`
	Remaining    int    `json:"remaining"`
	RetryAfterMs int64  `json:"retry_after_ms"`
	ResetAt      string `json:"reset_at,omitempty"`
	FailedOpen   bool   `json:"failed_open"`
}

type IssueOTPRequest struct {
	Recipient string `json:"recipient"`
	Channel   string `json:"channel"`
	Purpose   string `json:"purpose"`
}

type VerifyOTPRequest struct {
	Recipient string `json:"recipient"`
	Purpose   string `json:"purpose"`
	Code      string `json:"code"`
}

type VerifyOTPResponse struct {
	Verified bool `json:"verified"`
}

type PutProfileRequest struct {
	Username      string   `json:"username"`
	DisplayName   string   `json:"display_name"`
	Bio           string   `json:"bio,omitempty"`
	AvatarURL     string   `json:"avatar_url,omitempty"`
	FollowerCount int64    `json:"follower_count"`
	Verified      bool     `json:"verified"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
	Fields        []string `json:"fields,omitempty"`
	TTLSeconds    int      `json:"ttl_seconds,omitempty"`
}

type FlushCacheRequest struct {
	Namespace string `json:"namespace,omitempty"`
}

type FlushCacheResponse struct {
	Namespace   string `json:"namespace"`
	RemovedKeys int64  `json:"removed_keys"`
}
