package cmxapi

import (
	"context"
	"fmt"
	"io"

	"github.com/leefowlercu/cmxbatch/internal/coordinator"
	"github.com/leefowlercu/cmxbatch/internal/criteria"
)

// PageFetcher fetches one page of search results.
type PageFetcher interface {
	SearchPage(ctx context.Context, req PageRequest) (Page, error)
}

// Stream yields the documents matching a criterion, one page at a time, in
// the order the API returns them. A Stream is not safe for concurrent use and
// cannot be resumed; start a new one to read again from the beginning.
type Stream struct {
	fetcher  PageFetcher
	criteria criteria.Criterion
	pageSize int
	policy   coordinator.Policy

	buf   []DocumentRecord
	token string
	done  bool
	pages int
	err   error
}

// NewStream creates a stream. Page requests are retried with policy.
func NewStream(fetcher PageFetcher, crit criteria.Criterion, pageSize int, policy coordinator.Policy) *Stream {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if crit == nil {
		crit = criteria.MatchAll()
	}
	return &Stream{
		fetcher:  fetcher,
		criteria: crit,
		pageSize: pageSize,
		policy:   policy,
	}
}

// Next returns the next document, or io.EOF once the stream is exhausted.
// After an error every call returns the same error.
func (s *Stream) Next(ctx context.Context) (DocumentRecord, error) {
	for len(s.buf) == 0 {
		if s.err != nil {
			return DocumentRecord{}, s.err
		}
		if s.done {
			return DocumentRecord{}, io.EOF
		}
		if err := s.fetch(ctx); err != nil {
			s.err = err
			return DocumentRecord{}, err
		}
	}

	doc := s.buf[0]
	s.buf[0] = DocumentRecord{}
	s.buf = s.buf[1:]
	return doc, nil
}

// Pages returns the number of page requests that completed.
func (s *Stream) Pages() int {
	return s.pages
}

func (s *Stream) fetch(ctx context.Context) error {
	req := PageRequest{
		Criteria:  s.criteria,
		PageSize:  s.pageSize,
		PageToken: s.token,
	}

	var page Page
	_, err := s.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		page, err = s.fetcher.SearchPage(ctx, req)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch search page %d; %w", s.pages+1, err)
	}

	s.pages++
	s.buf = page.Documents
	s.token = page.NextPageToken
	// The token is single-use: a short page or a missing cursor ends the stream.
	if len(page.Documents) < s.pageSize || page.NextPageToken == "" {
		s.done = true
	}
	return nil
}
