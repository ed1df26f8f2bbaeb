package services

import (
	"context"
	"log/slog"

	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

// LogEconomy stands in for an external economy service. It logs each
// credit; balances themselves live in the reward ledger.
type LogEconomy struct {
	logger *slog.Logger
}

var _ engine.Economy = (*LogEconomy)(nil)

func NewLogEconomy(logger *slog.Logger) *LogEconomy {
	return &LogEconomy{logger: logger}
}

func (e *LogEconomy) Credit(ctx context.Context, userID, questID string, deltas map[string]int64) error {
	keys := narrative.Balances(deltas).Keys()
	args := []any{"user_id", userID, "quest_id", questID}
	for _, k := range keys {
		args = append(args, k, deltas[k])
	}
	e.logger.Info("Economy credit", args...)
	return nil
}
