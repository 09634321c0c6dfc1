package handler

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/lexcache/lexcache/internal/errors"
	"github.com/lexcache/lexcache/internal/protocol"
	"github.com/lexcache/lexcache/internal/validation"
)

func (h *Handler) handleTrackVocabMiss(ctx context.Context, raw []byte) interface{} {
	var req protocol.TrackVocabMissRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}

	if err := validation.ValidateUserID(req.UUID); err != nil {
		return protocol.NewError(err.Error())
	}
	words, err := validation.ValidateWords(req.Words)
	if err != nil {
		return protocol.NewError(err.Error())
	}

	tracked := 0
	for _, word := range words {
		if _, err := h.store.Incr(ctx, vocabMissKey(req.UUID, word)); err != nil {
			if !errors.IsNotReady(err) {
				log.Error("vocab miss increment failed", "uuid", req.UUID, "word", word, "error", err)
			}
			continue
		}
		tracked++
	}

	return &protocol.TrackVocabMissResult{
		Type:    protocol.TypeTrackVocabMissResult,
		Success: tracked == len(words),
		Tracked: tracked,
	}
}

func (h *Handler) handleGetVocabMissStats(ctx context.Context, raw []byte) interface{} {
	var req protocol.UserRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}
	if err := validation.ValidateUserID(req.UUID); err != nil {
		return protocol.NewError(err.Error())
	}

	resp := &protocol.VocabMissStats{
		Type:  protocol.TypeVocabMissStats,
		UUID:  req.UUID,
		Stats: map[string]int64{},
	}

	prefix := vocabMissKeyPrefix + req.UUID + ":"
	keys, err := h.store.Scan(ctx, prefix+"*")
	if err != nil {
		if errors.IsNotReady(err) {
			return resp
		}
		log.Error("vocab miss scan failed", "uuid", req.UUID, "error", err)
		return protocol.NewError("Vocab miss stats retrieval failed")
	}

	for _, key := range keys {
		value, found, err := h.store.Get(ctx, key)
		if err != nil {
			log.Error("vocab miss read failed", "key", key, "error", err)
			return protocol.NewError("Vocab miss stats retrieval failed")
		}
		if !found {
			continue
		}
		count, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			log.Warn("skipping non-numeric vocab miss counter", "key", key, "value", value)
			continue
		}
		resp.Stats[strings.TrimPrefix(key, prefix)] = count
	}

	return resp
}

func (h *Handler) handleClearVocabMiss(ctx context.Context, raw []byte) interface{} {
	var req protocol.UserRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}
	if err := validation.ValidateUserID(req.UUID); err != nil {
		return protocol.NewError(err.Error())
	}

	keys, err := h.store.Scan(ctx, vocabMissKeyPrefix+req.UUID+":*")
	if err != nil {
		log.Error("vocab miss scan failed", "uuid", req.UUID, "error", err)
		return protocol.NewError("Vocab miss clear failed")
	}
	sort.Strings(keys)

	deleted, err := h.store.Delete(ctx, keys...)
	if err != nil {
		log.Error("vocab miss delete failed", "uuid", req.UUID, "error", err)
		return protocol.NewError("Vocab miss clear failed")
	}

	log.Info("vocab misses cleared", "uuid", req.UUID, "deleted", deleted)
	return &protocol.ClearVocabMissResult{
		Type:    protocol.TypeClearVocabMissResult,
		UUID:    req.UUID,
		Deleted: deleted,
	}
}
