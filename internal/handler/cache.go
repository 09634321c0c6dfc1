// Audio cache handlers: content-addressed blobs keyed by text+voice.
package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexcache/lexcache/internal/cachekey"
	"github.com/lexcache/lexcache/internal/protocol"
	"github.com/lexcache/lexcache/internal/retention"
	"github.com/lexcache/lexcache/internal/validation"
)

// resolveCacheKey returns the explicit key when supplied, otherwise derives
// it from the (text, voiceId) pair. Validation happens before any store
// access.
func resolveCacheKey(req *protocol.CacheRequest) (string, error) {
	if req.CacheKey != "" {
		if err := validation.ValidateCacheKey(req.CacheKey); err != nil {
			return "", err
		}
		return req.CacheKey, nil
	}
	if req.Text == "" || req.VoiceID == "" {
		return "", fmt.Errorf("cacheKey or (text, voiceId) is required")
	}
	return cachekey.Derive(req.Text, req.VoiceID), nil
}

func (h *Handler) handleCheckCache(ctx context.Context, raw []byte) interface{} {
	var req protocol.CacheRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}

	key, err := resolveCacheKey(&req)
	if err != nil {
		return protocol.NewError(err.Error())
	}

	val, found, err := h.store.Get(ctx, audioKey(key))
	if err != nil {
		log.Error("cache check failed", "key", key, "error", err)
		return protocol.NewError("Cache check failed")
	}

	resp := &protocol.CacheCheckResult{
		Type:     protocol.TypeCacheCheckResult,
		CacheKey: key,
		Exists:   found,
	}
	if found {
		resp.AudioData = &val
	}

	log.Debug("cache check", "key", key, "hit", found)
	return resp
}

func (h *Handler) handleStoreCache(ctx context.Context, raw []byte) interface{} {
	var req protocol.StoreCacheRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}

	key, err := resolveCacheKey(&req.CacheRequest)
	if err != nil {
		return protocol.NewError(err.Error())
	}
	if req.AudioData == "" {
		return protocol.NewError("audioData is required")
	}

	// The store result is authoritative only if the write reads back
	// identically; a degraded store yields success=false, never an error.
	ok := h.store.SafeWrite(ctx, audioKey(key), req.AudioData, h.policy.TTL(retention.AudioCache))
	if ok {
		log.Debug("cached audio", "key", key, "bytes", len(req.AudioData))
	}

	return &protocol.CacheStoreResult{
		Type:     protocol.TypeCacheStoreResult,
		CacheKey: key,
		Success:  ok,
	}
}

func (h *Handler) handleEvictCache(ctx context.Context, raw []byte) interface{} {
	var req protocol.CacheRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}

	key, err := resolveCacheKey(&req)
	if err != nil {
		return protocol.NewError(err.Error())
	}

	existed, err := h.store.Exists(ctx, audioKey(key))
	if err != nil {
		log.Error("cache evict failed", "key", key, "error", err)
		return protocol.NewError("Cache evict failed")
	}
	if existed {
		if _, err := h.store.Delete(ctx, audioKey(key)); err != nil {
			log.Error("cache evict failed", "key", key, "error", err)
			return protocol.NewError("Cache evict failed")
		}
	}

	log.Debug("cache evict", "key", key, "evicted", existed)
	return &protocol.EvictCacheResult{
		Type:     protocol.TypeEvictCacheResult,
		CacheKey: key,
		Evicted:  existed,
	}
}

func (h *Handler) handleClearCache(ctx context.Context, raw []byte) interface{} {
	keys, err := h.store.Scan(ctx, audioKeyPrefix+"*")
	if err != nil {
		log.Error("cache clear failed", "error", err)
		return protocol.NewError("Cache clear failed")
	}

	var cleared int64
	if len(keys) > 0 {
		cleared, err = h.store.Delete(ctx, keys...)
		if err != nil {
			log.Error("cache clear failed", "error", err)
			return protocol.NewError("Cache clear failed")
		}
	}

	log.Info("cleared cached audio", "count", cleared)
	return &protocol.ClearCacheResult{Type: protocol.TypeClearCacheResult, Cleared: cleared}
}

func (h *Handler) handleGetStats(ctx context.Context, raw []byte) interface{} {
	keys, err := h.store.Scan(ctx, audioKeyPrefix+"*")
	if err != nil {
		log.Error("stats retrieval failed", "error", err)
		return protocol.NewError("Stats retrieval failed")
	}

	var totalBytes int64
	stripped := make([]string, 0, len(keys))
	for _, key := range keys {
		data, found, err := h.store.Get(ctx, key)
		if err != nil {
			log.Error("stats retrieval failed", "key", key, "error", err)
			return protocol.NewError("Stats retrieval failed")
		}
		if found {
			totalBytes += int64(len(data))
		}
		stripped = append(stripped, strings.TrimPrefix(key, audioKeyPrefix))
	}

	sizeMB := fmt.Sprintf("%.2f", float64(totalBytes)/1024/1024)

	log.Debug("cache stats", "count", len(keys), "size_mb", sizeMB)
	return &protocol.StatsResult{
		Type:   protocol.TypeStatsResult,
		Count:  len(keys),
		SizeMB: sizeMB,
		Keys:   stripped,
	}
}
