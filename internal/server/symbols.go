package server

import (
	"context"
	"sync"

	"marketstream/internal/cache"
	"marketstream/internal/exchange"
	"marketstream/internal/model"
)

// SymbolService lists tradable symbols per market kind, with an optional
// Redis cache in front of the exchange info endpoint. Exchange clients are
// built lazily and reused.
type SymbolService struct {
	cache *cache.SymbolsCache

	mu      sync.Mutex
	clients map[model.MarketKind]*exchange.Client
}

// NewSymbolService builds the service. A nil cache disables caching.
func NewSymbolService(symbolsCache *cache.SymbolsCache) *SymbolService {
	return &SymbolService{
		cache:   symbolsCache,
		clients: make(map[model.MarketKind]*exchange.Client),
	}
}

func (s *SymbolService) client(kind model.MarketKind) *exchange.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[kind]
	if !ok {
		client = exchange.NewClient(kind, nil)
		s.clients[kind] = client
	}
	return client
}

// Symbols returns the sorted listing for a market kind, served from the
// cache when fresh.
func (s *SymbolService) Symbols(ctx context.Context, kind model.MarketKind) ([]string, error) {
	if symbols, ok := s.cache.Get(ctx, kind); ok {
		return symbols, nil
	}

	symbols, err := s.client(kind).Symbols(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, kind, symbols)
	return symbols, nil
}
