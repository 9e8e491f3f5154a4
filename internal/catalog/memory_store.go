// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boxwire/boxwire/internal/models"
)

// MemoryStore is an in-memory Store used in tests and by components that
// only need a scratch catalog. A single mutex serializes all mutations,
// which trivially satisfies the per-entity serialization contract.
type MemoryStore struct {
	mu        sync.RWMutex
	playlists map[uuid.UUID]*models.Playlist
	tags      map[string]*models.TagLink
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		playlists: make(map[uuid.UUID]*models.Playlist),
		tags:      make(map[string]*models.TagLink),
	}
}

// Close implements Store. It is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreatePlaylist(ctx context.Context, name string) (*models.Playlist, error) {
	if name == "" {
		return nil, ErrNameRequired
	}

	now := time.Now().UTC()
	p := &models.Playlist{
		ID:        uuid.New(),
		Name:      name,
		Tracks:    []models.Track{},
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.playlists[p.ID] = p
	s.mu.Unlock()
	return clonePlaylist(p), nil
}

func (s *MemoryStore) GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.playlists[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePlaylist(p), nil
}

func (s *MemoryStore) ListPlaylists(ctx context.Context) ([]*models.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Playlist, 0, len(s.playlists))
	for _, p := range s.playlists {
		out = append(out, clonePlaylist(p))
	}
	return out, nil
}

func (s *MemoryStore) RenamePlaylist(ctx context.Context, id uuid.UUID, name string) (*models.Playlist, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	return s.mutate(id, func(p *models.Playlist) error {
		p.Name = name
		return nil
	})
}

func (s *MemoryStore) DeletePlaylist(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playlists[id]; !ok {
		return ErrNotFound
	}
	delete(s.playlists, id)
	for tagID, link := range s.tags {
		if link.PlaylistID == id {
			delete(s.tags, tagID)
		}
	}
	return nil
}

func (s *MemoryStore) AddTrack(ctx context.Context, playlistID uuid.UUID, track models.Track) (*models.Playlist, error) {
	if track.ID == uuid.Nil {
		track.ID = uuid.New()
	}
	if track.AddedAt.IsZero() {
		track.AddedAt = time.Now().UTC()
	}
	return s.mutate(playlistID, func(p *models.Playlist) error {
		p.Tracks = append(p.Tracks, track)
		return nil
	})
}

func (s *MemoryStore) RemoveTrack(ctx context.Context, playlistID, trackID uuid.UUID) (*models.Playlist, error) {
	return s.mutate(playlistID, func(p *models.Playlist) error {
		idx := p.TrackIndex(trackID)
		if idx < 0 {
			return ErrNotFound
		}
		p.Tracks = append(p.Tracks[:idx], p.Tracks[idx+1:]...)
		return nil
	})
}

func (s *MemoryStore) MoveTrack(ctx context.Context, playlistID, trackID uuid.UUID, newIndex int) (*models.Playlist, error) {
	return s.mutate(playlistID, func(p *models.Playlist) error {
		return moveTrack(p, trackID, newIndex)
	})
}

func (s *MemoryStore) LinkTag(ctx context.Context, tagID string, playlistID uuid.UUID) (*models.TagLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playlists[playlistID]; !ok {
		return nil, ErrNotFound
	}
	link := &models.TagLink{
		TagID:      tagID,
		PlaylistID: playlistID,
		LinkedAt:   time.Now().UTC(),
	}
	s.tags[tagID] = link
	cp := *link
	return &cp, nil
}

func (s *MemoryStore) UnlinkTag(ctx context.Context, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[tagID]; !ok {
		return ErrNotFound
	}
	delete(s.tags, tagID)
	return nil
}

func (s *MemoryStore) LookupTag(ctx context.Context, tagID string) (*models.TagLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.tags[tagID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *link
	return &cp, nil
}

func (s *MemoryStore) ListTagLinks(ctx context.Context) ([]*models.TagLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TagLink, 0, len(s.tags))
	for _, link := range s.tags {
		cp := *link
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) mutate(id uuid.UUID, fn func(*models.Playlist) error) (*models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.playlists[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	p.Revision++
	p.UpdatedAt = time.Now().UTC()
	return clonePlaylist(p), nil
}

func clonePlaylist(p *models.Playlist) *models.Playlist {
	cp := *p
	cp.Tracks = make([]models.Track, len(p.Tracks))
	copy(cp.Tracks, p.Tracks)
	return &cp
}
