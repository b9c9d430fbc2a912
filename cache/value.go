package cache

import (
	"slices"
	"time"
)

// SecretValue is one fetched version of a secret. Exactly one of
// SecretString and SecretBinary is set.
//
// Values stored in the cache are never modified; callers always receive a
// copy and may change it freely.
type SecretValue struct {
	// Name is the friendly name of the secret as reported by the store
	Name string
	// ARN is the store's full identifier of the secret, if it has one
	ARN string
	// VersionID identifies this version of the secret
	VersionID string
	// VersionStages lists every stage label attached to this version
	VersionStages []string
	// SecretString holds a string payload
	SecretString *string
	// SecretBinary holds a binary payload
	SecretBinary []byte
	// CreatedDate is when this version was created in the store
	CreatedDate time.Time
}

// IsBinary reports whether the value carries a binary payload
func (v *SecretValue) IsBinary() bool {
	return v.SecretString == nil && v.SecretBinary != nil
}

// HasStage reports whether the value is labelled with stage
func (v *SecretValue) HasStage(stage string) bool {
	return slices.Contains(v.VersionStages, stage)
}

// Clone returns a deep copy of v
func (v *SecretValue) Clone() *SecretValue {
	if v == nil {
		return nil
	}
	c := *v
	c.VersionStages = slices.Clone(v.VersionStages)
	if v.SecretString != nil {
		s := *v.SecretString
		c.SecretString = &s
	}
	if v.SecretBinary != nil {
		c.SecretBinary = slices.Clone(v.SecretBinary)
	}
	return &c
}
