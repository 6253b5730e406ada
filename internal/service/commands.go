package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Command op codes accepted on the command queue.
const (
	OpResetPeriod = "reset_period"
)

// Command is the JSON envelope consumed from the command queue. The billing
// scheduler that owns period boundaries publishes reset_period commands; the
// engine never resets a cursor on its own.
type Command struct {
	Op          string `json:"op"`
	MeterID     string `json:"meter_id"`
	RequestedAt string `json:"requested_at"`
}

// CommandService dispatches external commands to the owning service.
type CommandService struct {
	meters *MeterService
	logger *zap.Logger
}

// NewCommandService creates a new command dispatcher
func NewCommandService(meters *MeterService, logger *zap.Logger) *CommandService {
	return &CommandService{meters: meters, logger: logger}
}

// ProcessMessage handles one command message. Errors push the message to
// the DLQ via the consumer's NACK.
func (s *CommandService) ProcessMessage(ctx context.Context, body []byte) error {
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	s.logger.Info("processing command",
		zap.String("op", cmd.Op),
		zap.String("meter_id", cmd.MeterID),
	)

	switch cmd.Op {
	case OpResetPeriod:
		meterID, err := uuid.Parse(cmd.MeterID)
		if err != nil {
			return fmt.Errorf("invalid meter_id %q: %w", cmd.MeterID, err)
		}
		if _, err := s.meters.ResetPeriod(ctx, meterID); err != nil {
			return fmt.Errorf("failed to reset period: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown command op %q", cmd.Op)
	}
}
