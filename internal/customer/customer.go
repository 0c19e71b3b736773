// Package customer manages dealership customer records. Registration emits
// the event that drives CRM contact sync.
package customer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/internal/events"
	"github.com/dealerdesk/pkg/models"
)

// Store persists customers
type Store interface {
	Insert(ctx context.Context, c *models.Customer) error
	Get(ctx context.Context, id string) (*models.Customer, error)
	GetByEmail(ctx context.Context, email string) (*models.Customer, error)
}

// Publisher decouples the service from the event bus
type Publisher interface {
	Publish(ctx context.Context, evt events.Event)
}

// Service implements customer registration
type Service struct {
	store Store
	pub   Publisher
	now   func() time.Time
}

// NewService creates the customer service
func NewService(store Store, pub Publisher) *Service {
	return &Service{store: store, pub: pub, now: time.Now}
}

// Register creates a customer and emits customer.registered. Email is the
// natural key; registering an existing email is a conflict.
func (s *Service) Register(ctx context.Context, email, firstName, lastName, phone, source string) (*models.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errs.Validation("email", "valid email required")
	}

	if existing, err := s.store.GetByEmail(ctx, email); err == nil {
		return nil, errs.Conflict("customer with email %s already exists (id %s)", email, existing.ID)
	} else if !errs.IsNotFound(err) {
		return nil, err
	}

	c := &models.Customer{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Phone:     strings.TrimSpace(phone),
		Source:    source,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Insert(ctx, c); err != nil {
		return nil, err
	}

	if s.pub != nil {
		s.pub.Publish(ctx, events.New(events.KindCustomerRegistered, c.ID,
			events.CustomerRegisteredPayload{Customer: *c}))
	}
	return c, nil
}

// Get returns one customer
func (s *Service) Get(ctx context.Context, id string) (*models.Customer, error) {
	return s.store.Get(ctx, id)
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]models.Customer
	byEmail map[string]string
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]models.Customer),
		byEmail: make(map[string]string),
	}
}

// Insert implements Store
func (s *MemoryStore) Insert(ctx context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[c.Email]; ok {
		return errs.Conflict("customer with email %s already exists", c.Email)
	}
	s.byID[c.ID] = *c
	s.byEmail[c.Email] = c.ID
	return nil
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, errs.NotFound("customer", id)
	}
	return &c, nil
}

// GetByEmail implements Store
func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, errs.NotFound("customer", email)
	}
	c := s.byID[id]
	return &c, nil
}

// PostgresStore persists customers in the customers table
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Insert implements Store
func (s *PostgresStore) Insert(ctx context.Context, c *models.Customer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (id, email, first_name, last_name, phone, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Email, c.FirstName, c.LastName, c.Phone, c.Source, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

// Get implements Store
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Customer, error) {
	return s.scanOne(ctx, `SELECT id, email, first_name, last_name, phone, source, created_at
		FROM customers WHERE id = $1`, id)
}

// GetByEmail implements Store
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return s.scanOne(ctx, `SELECT id, email, first_name, last_name, phone, source, created_at
		FROM customers WHERE email = $1`, email)
}

func (s *PostgresStore) scanOne(ctx context.Context, query, arg string) (*models.Customer, error) {
	var c models.Customer
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Phone, &c.Source, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errs.NotFound("customer", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}
