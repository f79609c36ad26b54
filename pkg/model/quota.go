package model

// QuotaState is a point-in-time view of the usage counter. Used only
// increases; the soft threshold forces a token_threshold checkpoint, the
// hard limit refuses new mutation requests.
type QuotaState struct {
	Used          int64 `json:"used"`
	SoftThreshold int64 `json:"soft_threshold"`
	HardLimit     int64 `json:"hard_limit"`
}
