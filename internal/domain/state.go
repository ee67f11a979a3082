package domain

import (
	"maps"
	"time"
)

// UserStats accumulates lightweight per-user activity counters.
type UserStats struct {
	Messages int64     `json:"messages"`
	LastSeen time.Time `json:"last_seen"`
}

// ChatState is the moderation record for one chat. Mutations go
// through the state store's compare-and-set protocol; Version counts
// committed mutations and backs the optimistic concurrency check.
type ChatState struct {
	ChatID     int64                `json:"chat_id"`
	Rules      string               `json:"rules,omitempty"`
	Warnings   map[int64]int        `json:"warnings"`
	Notes      map[string]string    `json:"notes"`
	MutedUntil map[int64]time.Time  `json:"muted_until"`
	Banned     map[int64]struct{}   `json:"banned"`
	Stats      map[int64]*UserStats `json:"stats"`
	Version    int64                `json:"version"`
}

func NewChatState(chatID int64) *ChatState {
	return &ChatState{
		ChatID:     chatID,
		Warnings:   make(map[int64]int),
		Notes:      make(map[string]string),
		MutedUntil: make(map[int64]time.Time),
		Banned:     make(map[int64]struct{}),
		Stats:      make(map[int64]*UserStats),
	}
}

// Clone returns a deep copy. Handlers mutate clones only; the store
// never hands out its own backing maps.
func (s *ChatState) Clone() *ChatState {
	if s == nil {
		return nil
	}
	c := &ChatState{
		ChatID:     s.ChatID,
		Rules:      s.Rules,
		Warnings:   maps.Clone(s.Warnings),
		Notes:      maps.Clone(s.Notes),
		MutedUntil: maps.Clone(s.MutedUntil),
		Banned:     maps.Clone(s.Banned),
		Stats:      make(map[int64]*UserStats, len(s.Stats)),
		Version:    s.Version,
	}
	for id, st := range s.Stats {
		cp := *st
		c.Stats[id] = &cp
	}
	c.ensureMaps()
	return c
}

// ensureMaps backfills nil maps after JSON decoding of older rows.
func (s *ChatState) ensureMaps() {
	if s.Warnings == nil {
		s.Warnings = make(map[int64]int)
	}
	if s.Notes == nil {
		s.Notes = make(map[string]string)
	}
	if s.MutedUntil == nil {
		s.MutedUntil = make(map[int64]time.Time)
	}
	if s.Banned == nil {
		s.Banned = make(map[int64]struct{})
	}
	if s.Stats == nil {
		s.Stats = make(map[int64]*UserStats)
	}
}

// Normalize is called after decoding a persisted state so callers can
// rely on non-nil maps.
func (s *ChatState) Normalize() {
	s.ensureMaps()
}

func (s *ChatState) IsMuted(userID int64, now time.Time) bool {
	until, ok := s.MutedUntil[userID]
	return ok && now.Before(until)
}

func (s *ChatState) IsBanned(userID int64) bool {
	_, ok := s.Banned[userID]
	return ok
}

// TouchStats bumps the message counter for a user.
func (s *ChatState) TouchStats(userID int64, at time.Time) {
	st, ok := s.Stats[userID]
	if !ok {
		st = &UserStats{}
		s.Stats[userID] = st
	}
	st.Messages++
	st.LastSeen = at
}

// ExpiredMutes returns the users whose mute window has passed.
func (s *ChatState) ExpiredMutes(now time.Time) []int64 {
	var expired []int64
	for userID, until := range s.MutedUntil {
		if !now.Before(until) {
			expired = append(expired, userID)
		}
	}
	return expired
}
