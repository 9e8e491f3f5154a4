// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/boxwire/boxwire/internal/models"
)

// Key prefixes for BadgerDB storage.
const (
	playlistKeyPrefix = "playlist:"
	tagKeyPrefix      = "tag:"
)

// BadgerStore implements Store using BadgerDB for durable storage.
//
// Badger's serializable transactions provide the per-entity mutation
// serialization the control plane requires: two concurrent writers to the
// same playlist key conflict, and the loser retries against the winner's
// committed state.
type BadgerStore struct {
	db    *badger.DB
	owned bool
}

// NewBadgerStore opens (or creates) a Badger database at path.
// An empty path opens an in-memory database, useful for tests.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open catalog store: %w", err)
	}
	return &BadgerStore{db: db, owned: true}, nil
}

// NewBadgerStoreFromDB wraps an already-open Badger database.
// Close becomes a no-op; the caller retains ownership of db.
func NewBadgerStoreFromDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close closes the underlying database if this store opened it.
func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// CreatePlaylist stores a new empty playlist at revision 1.
func (s *BadgerStore) CreatePlaylist(ctx context.Context, name string) (*models.Playlist, error) {
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

	err := s.db.Update(func(txn *badger.Txn) error {
		return putPlaylist(txn, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPlaylist retrieves a playlist by id.
func (s *BadgerStore) GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error) {
	var p *models.Playlist
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = getPlaylist(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPlaylists returns all playlists.
func (s *BadgerStore) ListPlaylists(ctx context.Context) ([]*models.Playlist, error) {
	playlists := []*models.Playlist{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(playlistKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var p models.Playlist
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			})
			if err != nil {
				return fmt.Errorf("decode playlist: %w", err)
			}
			playlists = append(playlists, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return playlists, nil
}

// RenamePlaylist updates a playlist's name and bumps its revision.
func (s *BadgerStore) RenamePlaylist(ctx context.Context, id uuid.UUID, name string) (*models.Playlist, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	return s.mutatePlaylist(id, func(p *models.Playlist) error {
		p.Name = name
		return nil
	})
}

// DeletePlaylist removes a playlist and any tag links pointing at it.
func (s *BadgerStore) DeletePlaylist(ctx context.Context, id uuid.UUID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := getPlaylist(txn, id); err != nil {
			return err
		}
		if err := txn.Delete(playlistKey(id)); err != nil {
			return fmt.Errorf("delete playlist: %w", err)
		}

		// Drop dangling tag links.
		links, err := listTagLinks(txn)
		if err != nil {
			return err
		}
		for _, link := range links {
			if link.PlaylistID == id {
				if err := txn.Delete([]byte(tagKeyPrefix + link.TagID)); err != nil {
					return fmt.Errorf("delete tag link: %w", err)
				}
			}
		}
		return nil
	})
}

// AddTrack appends a track to the playlist and bumps its revision.
func (s *BadgerStore) AddTrack(ctx context.Context, playlistID uuid.UUID, track models.Track) (*models.Playlist, error) {
	if track.ID == uuid.Nil {
		track.ID = uuid.New()
	}
	if track.AddedAt.IsZero() {
		track.AddedAt = time.Now().UTC()
	}
	return s.mutatePlaylist(playlistID, func(p *models.Playlist) error {
		p.Tracks = append(p.Tracks, track)
		return nil
	})
}

// RemoveTrack deletes a track from the playlist and bumps its revision.
func (s *BadgerStore) RemoveTrack(ctx context.Context, playlistID, trackID uuid.UUID) (*models.Playlist, error) {
	return s.mutatePlaylist(playlistID, func(p *models.Playlist) error {
		idx := p.TrackIndex(trackID)
		if idx < 0 {
			return ErrNotFound
		}
		p.Tracks = append(p.Tracks[:idx], p.Tracks[idx+1:]...)
		return nil
	})
}

// MoveTrack repositions a track and bumps the playlist revision.
func (s *BadgerStore) MoveTrack(ctx context.Context, playlistID, trackID uuid.UUID, newIndex int) (*models.Playlist, error) {
	return s.mutatePlaylist(playlistID, func(p *models.Playlist) error {
		return moveTrack(p, trackID, newIndex)
	})
}

// LinkTag binds tagID to playlistID, replacing any previous link.
func (s *BadgerStore) LinkTag(ctx context.Context, tagID string, playlistID uuid.UUID) (*models.TagLink, error) {
	link := &models.TagLink{
		TagID:      tagID,
		PlaylistID: playlistID,
		LinkedAt:   time.Now().UTC(),
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := getPlaylist(txn, playlistID); err != nil {
			return err
		}
		data, err := json.Marshal(link)
		if err != nil {
			return fmt.Errorf("marshal tag link: %w", err)
		}
		return txn.Set([]byte(tagKeyPrefix+tagID), data)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// UnlinkTag removes the link for tagID.
func (s *BadgerStore) UnlinkTag(ctx context.Context, tagID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(tagKeyPrefix + tagID)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("get tag link: %w", err)
		}
		return txn.Delete(key)
	})
}

// LookupTag returns the current link for tagID.
func (s *BadgerStore) LookupTag(ctx context.Context, tagID string) (*models.TagLink, error) {
	var link models.TagLink
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(tagKeyPrefix + tagID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get tag link: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &link)
		})
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// ListTagLinks returns all tag links.
func (s *BadgerStore) ListTagLinks(ctx context.Context) ([]*models.TagLink, error) {
	var links []*models.TagLink
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		links, err = listTagLinks(txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

// mutatePlaylist applies fn to the stored playlist inside one transaction,
// bumping the revision and update time on success.
func (s *BadgerStore) mutatePlaylist(id uuid.UUID, fn func(*models.Playlist) error) (*models.Playlist, error) {
	var p *models.Playlist
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		p, err = getPlaylist(txn, id)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		p.Revision++
		p.UpdatedAt = time.Now().UTC()
		return putPlaylist(txn, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func playlistKey(id uuid.UUID) []byte {
	return []byte(playlistKeyPrefix + id.String())
}

func getPlaylist(txn *badger.Txn, id uuid.UUID) (*models.Playlist, error) {
	item, err := txn.Get(playlistKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get playlist: %w", err)
	}

	var p models.Playlist
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	})
	if err != nil {
		return nil, fmt.Errorf("decode playlist: %w", err)
	}
	return &p, nil
}

func putPlaylist(txn *badger.Txn, p *models.Playlist) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal playlist: %w", err)
	}
	return txn.Set(playlistKey(p.ID), data)
}

func listTagLinks(txn *badger.Txn) ([]*models.TagLink, error) {
	links := []*models.TagLink{}
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(tagKeyPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var link models.TagLink
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &link)
		})
		if err != nil {
			return nil, fmt.Errorf("decode tag link: %w", err)
		}
		links = append(links, &link)
	}
	return links, nil
}
