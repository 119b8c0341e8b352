package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/log/zapadapter"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"github.com/Geniuskaa/maraton_registration/internal/config"
	"github.com/Geniuskaa/maraton_registration/pkg/registration"
)

const schema = `create table if not exists registration_attempt (
	id          uuid primary key,
	outcome     text        not null,
	status      integer     not null,
	plantel     text        not null,
	duration_ms bigint      not null,
	created_at  timestamptz not null
);
create index if not exists registration_attempt_created_at_idx on registration_attempt (created_at desc);`

type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

// DSN escapes credentials, so passwords may contain URL delimiters.
func DSN(conf *config.Entity) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(conf.DB.Hostname, strconv.Itoa(int(conf.DB.Port))),
		Path:   "/" + conf.DB.Name,
	}
	if conf.DB.User != "" {
		u.User = url.UserPassword(conf.DB.User, conf.DB.Pass)
	}
	return u.String()
}

// PoolCreation panics when the configured database cannot be reached.
func PoolCreation(ctx context.Context, logger *zap.Logger, conf *config.Entity) *pgxpool.Pool {
	dbConf, err := pgxpool.ParseConfig(DSN(conf))
	if err != nil {
		logger.Panic("Err db config parsing", zap.Error(fmt.Errorf("poolCreation failed: %w", err)))
	}
	dbConf.ConnConfig.Logger = zapadapter.NewLogger(logger)
	dbConf.ConnConfig.LogLevel = pgx.LogLevelError
	dbConf.MaxConnIdleTime = time.Second * 10
	dbConf.MaxConnLifetime = time.Duration(conf.DB.ConnLifeTime) * time.Minute
	dbConf.MaxConns = conf.DB.MaxOpenConns
	dbConf.MinConns = conf.DB.MinConns

	pool, err := pgxpool.ConnectConfig(ctx, dbConf)
	if err != nil {
		logger.Panic("Err connection to DB", zap.Error(fmt.Errorf("poolCreation failed: %w", err)))
	}

	return pool
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("Migrate failed: %w", err)
	}
	return nil
}

func (p *Postgres) RecordAttempt(ctx context.Context, a registration.Attempt) error {
	_, err := p.Pool.Exec(ctx, `insert into registration_attempt (id, outcome, status, plantel, duration_ms, created_at)
		values ($1, $2, $3, $4, $5, $6)`,
		a.ID.String(), a.Outcome, a.Status, a.Plantel, a.Duration.Milliseconds(), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("RecordAttempt failed: %w", err)
	}
	return nil
}

// RecentAttempts returns the newest attempts first.
func (p *Postgres) RecentAttempts(ctx context.Context, limit int) ([]registration.Attempt, error) {
	rows, err := p.Pool.Query(ctx, `select id::text, outcome, status, plantel, duration_ms, created_at
		from registration_attempt order by created_at desc limit $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentAttempts failed: %w", err)
	}
	defer rows.Close()

	res := make([]registration.Attempt, 0, limit)
	for rows.Next() {
		var a registration.Attempt
		var id string
		var ms int64
		if err := rows.Scan(&id, &a.Outcome, &a.Status, &a.Plantel, &ms, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("rows.Scan failed: %w", err)
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("uuid.Parse failed: %w", err)
		}
		a.Duration = time.Duration(ms) * time.Millisecond
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentAttempts failed: %w", err)
	}
	return res, nil
}
