package app

import (
	"fmt"
	"sync/atomic"

	"github.com/artpar/mesgate/core/schema"
	"github.com/rs/zerolog"
)

// SchemaService holds the current service schema document.
// The document is swapped atomically on reload; readers never block.
type SchemaService struct {
	path    string
	logger  zerolog.Logger
	metrics Recorder
	doc     atomic.Pointer[schema.Document]
}

// NewSchemaService loads the document at path, or the built-in document
// when path is empty.
func NewSchemaService(path string, logger zerolog.Logger, metrics Recorder) (*SchemaService, error) {
	if metrics == nil {
		metrics = NopRecorder{}
	}
	s := &SchemaService{
		path:    path,
		logger:  logger,
		metrics: metrics,
	}

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	s.doc.Store(doc)

	logger.Info().
		Str("source", s.source()).
		Int("services", len(doc.Services)).
		Msg("service schema loaded")
	return s, nil
}

// Document returns the current document.
func (s *SchemaService) Document() *schema.Document {
	return s.doc.Load()
}

// Path returns the document file path, empty for the built-in document.
func (s *SchemaService) Path() string {
	return s.path
}

// Reload re-reads the document. An invalid document is rejected and the
// previous one stays in effect.
func (s *SchemaService) Reload() error {
	doc, err := s.load()
	if err != nil {
		s.metrics.DocumentReloaded(false)
		s.logger.Error().Err(err).Str("source", s.source()).Msg("service schema reload rejected")
		return err
	}

	s.doc.Store(doc)
	s.metrics.DocumentReloaded(true)
	s.logger.Info().
		Str("source", s.source()).
		Int("services", len(doc.Services)).
		Msg("service schema reloaded")
	return nil
}

func (s *SchemaService) load() (*schema.Document, error) {
	if s.path == "" {
		return schema.Builtin(), nil
	}
	doc, err := schema.ParseFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("load services from %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *SchemaService) source() string {
	if s.path == "" {
		return "builtin"
	}
	return s.path
}
