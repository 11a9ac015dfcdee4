package database

import (
	"context"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
)

// Session executes statements on a Driver and returns normalized results.
// Statement text is passed through as is.
type Session struct {
	driver     Driver
	normalizer *Normalizer
}

func NewSession(driver Driver, normalizer *Normalizer) *Session {
	if normalizer == nil {
		normalizer = NewNormalizer("")
	}
	return &Session{driver: driver, normalizer: normalizer}
}

func (s *Session) Driver() Driver {
	return s.driver
}

// Run executes query and normalizes its payload. Driver failures come back
// classified as *dialect.StatementError.
func (s *Session) Run(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	payload, err := s.driver.Execute(ctx, query, args)
	if err != nil {
		return nil, dialect.Classify(err, query, args)
	}
	rs, err := s.normalizer.Normalize(payload)
	if err != nil {
		return nil, dialect.Classify(err, query, args)
	}
	return rs, nil
}
