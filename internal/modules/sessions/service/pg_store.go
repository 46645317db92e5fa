package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"forex_bot/internal/models"
	"forex_bot/pkg/db"
)

// PgSessionStore хранит сессии в postgres; наборы активаций — json-колонками.
type PgSessionStore struct {
	tx db.TxManager
}

func NewPgSessionStore(tx db.TxManager) *PgSessionStore {
	return &PgSessionStore{tx: tx}
}

func (s *PgSessionStore) SaveSession(ctx context.Context, sess *models.TradingSession) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgSessionStore.SaveSession: %w", err)
		}
	}()

	pairs, err := sonic.Marshal(sess.ActivePairs)
	if err != nil {
		return err
	}
	timeframes, err := sonic.Marshal(sess.ActiveTimeframes)
	if err != nil {
		return err
	}
	strategies, err := sonic.Marshal(sess.ActiveStrategies)
	if err != nil {
		return err
	}

	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO trading_sessions (session_id, user_id, active_pairs, active_timeframes, active_strategies, is_active, broker_connected, created_at, last_activity)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (session_id) DO UPDATE SET
			   active_pairs = EXCLUDED.active_pairs,
			   active_timeframes = EXCLUDED.active_timeframes,
			   active_strategies = EXCLUDED.active_strategies,
			   is_active = EXCLUDED.is_active,
			   broker_connected = EXCLUDED.broker_connected,
			   last_activity = EXCLUDED.last_activity`,
			sess.SessionID, sess.UserID, pairs, timeframes, strategies,
			sess.IsActive, sess.BrokerConnected, sess.CreatedAt, sess.LastActivity,
		)
		return err
	})
}

func (s *PgSessionStore) LoadSession(ctx context.Context, sessionID string) (sess *models.TradingSession, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgSessionStore.LoadSession: %w", err)
		}
	}()

	err = s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT session_id, user_id, active_pairs, active_timeframes, active_strategies, is_active, broker_connected, created_at, last_activity
			 FROM trading_sessions WHERE session_id = $1`, sessionID)
		sess, err = scanSession(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *PgSessionStore) ActiveSessions(ctx context.Context) (sessions []models.TradingSession, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgSessionStore.ActiveSessions: %w", err)
		}
	}()

	err = s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT session_id, user_id, active_pairs, active_timeframes, active_strategies, is_active, broker_connected, created_at, last_activity
			 FROM trading_sessions WHERE is_active`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			sess, err := scanSession(rows)
			if err != nil {
				return err
			}
			sessions = append(sessions, *sess)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanSession(row pgx.Row) (*models.TradingSession, error) {
	var (
		sess       models.TradingSession
		pairs      []byte
		timeframes []byte
		strategies []byte
	)
	err := row.Scan(&sess.SessionID, &sess.UserID, &pairs, &timeframes, &strategies,
		&sess.IsActive, &sess.BrokerConnected, &sess.CreatedAt, &sess.LastActivity)
	if err != nil {
		return nil, err
	}
	if len(pairs) > 0 {
		if err := sonic.Unmarshal(pairs, &sess.ActivePairs); err != nil {
			return nil, err
		}
	}
	if len(timeframes) > 0 {
		if err := sonic.Unmarshal(timeframes, &sess.ActiveTimeframes); err != nil {
			return nil, err
		}
	}
	if len(strategies) > 0 {
		if err := sonic.Unmarshal(strategies, &sess.ActiveStrategies); err != nil {
			return nil, err
		}
	}
	return &sess, nil
}
