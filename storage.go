package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

const (
	productsKey = "products"
	cartKey     = "cart"
	vendorsKey  = "vendors"
	sessionKey  = "vendor_session"
	ordersKey   = "orders"
)

// Storage reads and writes one profile's records as JSON blobs under a key
// namespace. Every Save is a plain overwrite.
type Storage struct {
	kv        KV
	namespace string
}

func NewStorage(kv KV, namespace string) *Storage {
	return &Storage{kv: kv, namespace: namespace}
}

func (s *Storage) key(name string) string {
	if s.namespace == "" {
		return name
	}
	return s.namespace + ":" + name
}

func (s *Storage) load(ctx context.Context, name string, v any) (bool, error) {
	raw, ok, err := s.kv.Get(ctx, s.key(name))
	if err != nil {
		return false, fmt.Errorf("load %s: %w", name, err)
	}
	if !ok || raw == "" || raw == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *Storage) save(ctx context.Context, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.kv.Set(ctx, s.key(name), string(b)); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

func (s *Storage) LoadProducts(ctx context.Context) ([]Product, error) {
	var raw []Product
	if _, err := s.load(ctx, productsKey, &raw); err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(raw))
	for _, p := range raw {
		p = NewProduct(p)
		if p.ID == "" {
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *Storage) SaveProducts(ctx context.Context, products []Product) error {
	if products == nil {
		products = []Product{}
	}
	return s.save(ctx, productsKey, products)
}

func (s *Storage) LoadCart(ctx context.Context) (Cart, error) {
	cart := Cart{}
	if _, err := s.load(ctx, cartKey, &cart); err != nil {
		return nil, err
	}
	if cart == nil {
		cart = Cart{}
	}
	return cart, nil
}

func (s *Storage) SaveCart(ctx context.Context, cart Cart) error {
	if cart == nil {
		cart = Cart{}
	}
	return s.save(ctx, cartKey, cart)
}

func (s *Storage) LoadVendors(ctx context.Context) ([]Vendor, error) {
	var raw []Vendor
	if _, err := s.load(ctx, vendorsKey, &raw); err != nil {
		return nil, err
	}
	vendors := make([]Vendor, 0, len(raw))
	for _, v := range raw {
		v = NewVendor(v)
		if v.ID == "" || v.Email == "" {
			continue
		}
		vendors = append(vendors, v)
	}
	return vendors, nil
}

func (s *Storage) SaveVendors(ctx context.Context, vendors []Vendor) error {
	if vendors == nil {
		vendors = []Vendor{}
	}
	return s.save(ctx, vendorsKey, vendors)
}

// LoadSession returns nil when nobody is logged in.
func (s *Storage) LoadSession(ctx context.Context) (*Session, error) {
	var sess Session
	ok, err := s.load(ctx, sessionKey, &sess)
	if err != nil || !ok || sess.VendorID == "" {
		return nil, err
	}
	return &sess, nil
}

func (s *Storage) SaveSession(ctx context.Context, sess Session) error {
	return s.save(ctx, sessionKey, sess)
}

func (s *Storage) ClearSession(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key(sessionKey)); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Storage) LoadOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	if _, err := s.load(ctx, ordersKey, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Storage) AppendOrder(ctx context.Context, order Order) error {
	orders, err := s.LoadOrders(ctx)
	if err != nil {
		return err
	}
	return s.save(ctx, ordersKey, append(orders, order))
}

// PostgresKV stores the blobs in a kv_store table.
type PostgresKV struct {
	db *sql.DB
}

func NewPostgresStorage(connStr string) (*PostgresKV, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresKV{
		db: db,
	}, nil
}

func (s *PostgresKV) Init() error {
	return s.createKVTable()
}

func (s *PostgresKV) createKVTable() error {
	query := `create table if not exists kv_store (
		key varchar(200) primary key,
		value text not null,
		updated_at timestamp default current_timestamp
	)`
	_, err := s.db.Exec(query)
	return err
}

func (s *PostgresKV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `select value from kv_store where key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *PostgresKV) Set(ctx context.Context, key, value string) error {
	query := `insert into kv_store (key, value) values ($1, $2)
	on conflict (key) do update set value = excluded.value, updated_at = current_timestamp`
	_, err := s.db.ExecContext(ctx, query, key, value)
	return err
}

func (s *PostgresKV) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `delete from kv_store where key = $1`, key)
	return err
}

func (s *PostgresKV) Close() error {
	return s.db.Close()
}

// OpenKV builds the backend named by cfg.Driver.
func OpenKV(ctx context.Context, cfg StoreConfig, rcfg RedisConfig) (KV, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryKV(), nil
	case "sqlite":
		return OpenSQLiteKV(cfg.DSN)
	case "postgres":
		pg, err := NewPostgresStorage(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Init(); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		return pg, nil
	case "redis":
		return NewRedisKV(ctx, rcfg)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}
