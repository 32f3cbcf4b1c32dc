package contact

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaani-voice/backend/internal/models"
)

// Store persists contact leads. Create assigns ID and CreatedAt.
type Store interface {
	Create(ctx context.Context, in models.ContactInput) (*models.ContactLead, error)
}

// MemoryStore keeps leads in process memory, keyed by a counter starting at 1.
// Nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	leads  map[int64]models.ContactLead
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		leads:  make(map[int64]models.ContactLead),
		now:    time.Now,
	}
}

// Create implements Store. Read-increment-insert happens under one lock.
func (s *MemoryStore) Create(ctx context.Context, in models.ContactInput) (*models.ContactLead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lead := models.ContactLead{
		ID:          s.nextID,
		Name:        in.Name,
		Email:       in.Email,
		CompanyName: in.CompanyName,
		Message:     in.Message,
		CreatedAt:   s.now().UTC(),
	}
	s.leads[lead.ID] = lead
	s.nextID++
	return &lead, nil
}

// Len returns the number of stored leads.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leads)
}

// Get returns a lead by id.
func (s *MemoryStore) Get(id int64) (models.ContactLead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	return l, ok
}

// PostgresStore persists leads in the contact_leads table (BIGSERIAL id).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, in models.ContactInput) (*models.ContactLead, error) {
	const q = `INSERT INTO contact_leads (name, email, company_name, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	lead := models.ContactLead{
		Name:        in.Name,
		Email:       in.Email,
		CompanyName: in.CompanyName,
		Message:     in.Message,
	}
	if err := s.pool.QueryRow(ctx, q, in.Name, in.Email, in.CompanyName, in.Message).
		Scan(&lead.ID, &lead.CreatedAt); err != nil {
		return nil, err
	}
	return &lead, nil
}
