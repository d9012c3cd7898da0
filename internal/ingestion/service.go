package ingestion

import (
	"context"
	"io"

	"github.com/rpattn/rosterscd/internal/domain"
	"github.com/rpattn/rosterscd/internal/logging"

	"github.com/sirupsen/logrus"
)

// Service turns a roster export into a normalized batch.
type Service struct {
	normalizer *Normalizer
	parseOpts  ParseOptions
	logger     *logrus.Entry
}

// NewService creates a new ingestion service.
func NewService(normalizer *Normalizer, parseOpts ParseOptions, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		normalizer: normalizer,
		parseOpts:  parseOpts,
		logger:     logger,
	}
}

// Request describes the ingestion input.
type Request struct {
	FileName string
	Data     io.Reader
	// HeaderRowIndex overrides the configured header row when set.
	HeaderRowIndex *int
}

// Load reads, parses and normalizes the request payload.
// Read and parse failures carry KindIngestion, header failures KindSchemaMismatch.
func (s *Service) Load(ctx context.Context, req Request) (NormalizedBatch, error) {
	if req.Data == nil {
		return NormalizedBatch{}, domain.NewError(domain.KindIngestion, "read "+req.FileName, domain.ErrEmptyFile)
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return NormalizedBatch{}, domain.NewError(domain.KindIngestion, "read "+req.FileName, err)
	}
	if err := ctx.Err(); err != nil {
		return NormalizedBatch{}, err
	}

	opts := s.parseOpts
	if req.HeaderRowIndex != nil {
		opts.HeaderRowIndex = req.HeaderRowIndex
	}

	raw, err := ParseTable(req.FileName, payload, opts)
	if err != nil {
		return NormalizedBatch{}, domain.NewError(domain.KindIngestion, "parse "+req.FileName, err)
	}

	s.logger.WithFields(logrus.Fields{
		"file":    req.FileName,
		"columns": len(raw.Headers),
		"rows":    len(raw.Rows),
		"header":  raw.HeaderRowIndex,
	}).Debug("parsed roster table")

	batch, err := s.normalizer.Normalize(raw)
	if err != nil {
		return batch, err
	}

	s.logger.WithFields(logrus.Fields{
		"file":     req.FileName,
		"records":  len(batch.Records),
		"read":     batch.RowsRead,
		"dropped":  batch.RowsDropped,
		"warnings": len(batch.Warnings),
	}).Info("normalized roster batch")

	return batch, nil
}

// Schema exposes the schema used by the normalizer.
func (s *Service) Schema() domain.RosterSchema {
	return s.normalizer.Schema()
}
