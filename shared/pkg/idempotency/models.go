package idempotency

import "time"

// IdempotencyKey is the stored state of one keyed request: locked while
// the first request runs, completed once its response is recorded
type IdempotencyKey struct {
	Key                string     `json:"key" bson:"key"`
	OwnerID            string     `json:"ownerId,omitempty" bson:"ownerId,omitempty"`
	ServiceID          string     `json:"serviceId" bson:"serviceId"`
	RequestPath        string     `json:"requestPath" bson:"requestPath"`
	RequestMethod      string     `json:"requestMethod" bson:"requestMethod"`
	RequestFingerprint string     `json:"requestFingerprint" bson:"requestFingerprint"`
	LockedAt           *time.Time `json:"lockedAt,omitempty" bson:"lockedAt,omitempty"`
	ResponseCode       int        `json:"responseCode,omitempty" bson:"responseCode,omitempty"`
	ResponseBody       []byte     `json:"responseBody,omitempty" bson:"responseBody,omitempty"`
	CreatedAt          time.Time  `json:"createdAt" bson:"createdAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	ExpiresAt          time.Time  `json:"expiresAt" bson:"expiresAt"`
}

// StorageKey is the scoped key under which the record is stored
func (ik *IdempotencyKey) StorageKey() string {
	if ik.OwnerID != "" {
		return "idem:" + ik.ServiceID + ":" + ik.OwnerID + ":" + ik.Key
	}
	return "idem:" + ik.ServiceID + ":" + ik.Key
}

// IsCompleted reports whether a response has been recorded
func (ik *IdempotencyKey) IsCompleted() bool {
	return ik.CompletedAt != nil
}

// IsLocked reports whether the first request is still running
func (ik *IdempotencyKey) IsLocked() bool {
	return ik.LockedAt != nil && ik.CompletedAt == nil
}
