package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamDefinitionKey returns the cache key for an exam definition with its questions.
// The version suffix changes whenever the cached JSON shape does.
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition:v2", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// FrameRateKey returns the rate limit counter key for a user's frame uploads
func (r *CacheKeyStruct) FrameRateKey(userID int) string {
	return fmt.Sprintf("ratelimit:frames:%d", userID)
}

var CacheKey = NewCacheKeyStruct()
