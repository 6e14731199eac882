// Package mocks holds the testify mocks shared across package tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
)

// -- Reasoner Mock --

// MockReasoner mocks the engine.Reasoner interface.
type MockReasoner struct {
	mock.Mock
}

// Complete provides a mock function for completion calls.
func (m *MockReasoner) Complete(ctx context.Context, req schemas.CompletionRequest) (*schemas.CompletionResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.CompletionResponse), args.Error(1)
}

// -- Searcher Mock --

// MockSearcher mocks the engine.Searcher interface.
type MockSearcher struct {
	mock.Mock
}

// Search provides a mock function for search calls.
func (m *MockSearcher) Search(ctx context.Context, req schemas.SearchRequest) (*schemas.SearchResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.SearchResponse), args.Error(1)
}

// -- Store Mock --

// MockStore mocks the snapshot persistence boundary consumed by cmd.
type MockStore struct {
	mock.Mock
}

// SaveSnapshot provides a mock function for persisting a session snapshot.
func (m *MockStore) SaveSnapshot(ctx context.Context, sessionID string, export schemas.GraphExport, rc *schemas.ResearchContext, results []*schemas.StageResult) error {
	args := m.Called(ctx, sessionID, export, rc, results)
	return args.Error(0)
}
