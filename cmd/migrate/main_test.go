package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ddlFor(t *testing.T, table string) string {
	t.Helper()
	for _, s := range statements {
		if strings.Contains(s, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			return s
		}
	}
	require.Failf(t, "missing DDL", "no CREATE TABLE for %s", table)
	return ""
}

// trades_closed — счётчик закрытых позиций, не флаг: стор пишет туда int.
func TestRiskEventsTradesClosedIsACount(t *testing.T) {
	ddl := ddlFor(t, "risk_events")
	assert.Contains(t, ddl, "trades_closed       INTEGER NOT NULL DEFAULT 0")
	assert.NotContains(t, ddl, "trades_closed       BOOLEAN")
}

func TestSchemaCoversAllTables(t *testing.T) {
	for _, table := range []string{
		"portfolios", "strategy_allocations", "pair_allocations",
		"risk_events", "trading_tasks", "trading_sessions",
	} {
		assert.NotEmpty(t, ddlFor(t, table), table)
	}
}
