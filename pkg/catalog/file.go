package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FileStore loads the catalog from a JSON dump once at startup. Catalog
// persistence is out of scope for the gateway, so a read-only snapshot is
// all that is needed to resolve origin URLs for minting.
type FileStore struct {
	logger  zerolog.Logger
	batches map[string]batch
}

type batch struct {
	Name     string             `json:"name"`
	Subjects map[string]subject `json:"subjects"`
}

type subject struct {
	Name   string           `json:"name"`
	Topics map[string]topic `json:"topics"`
}

type topic struct {
	Name     string    `json:"name"`
	Lectures []Lecture `json:"lectures"`
}

func NewFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var doc struct {
		Batches map[string]batch `json:"batches"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	logger := log.With().Str("module", "catalog").Logger()
	logger.Info().Str("path", path).Int("batches", len(doc.Batches)).Msg("catalog loaded")

	return &FileStore{
		logger:  logger,
		batches: doc.Batches,
	}, nil
}

func (s *FileStore) GetLecture(_ context.Context, batchID, subjectID, topicID string, index int) (Lecture, error) {
	b, ok := s.batches[batchID]
	if !ok {
		return Lecture{}, ErrNotFound
	}

	sub, ok := b.Subjects[subjectID]
	if !ok {
		return Lecture{}, ErrNotFound
	}

	top, ok := sub.Topics[topicID]
	if !ok {
		return Lecture{}, ErrNotFound
	}

	if index < 0 || index >= len(top.Lectures) {
		return Lecture{}, ErrNotFound
	}

	return top.Lectures[index], nil
}
