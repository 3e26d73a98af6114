package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/allocation/internal/core/message"
)

// decoded mimics what a subscriber on the external bus reconstructs.
func decoded(t *testing.T, msg *message.Message) *message.Message {
	t.Helper()
	body, err := json.Marshal(msg.Payload())
	require.NoError(t, err)
	var p message.Payload
	require.NoError(t, json.Unmarshal(body, &p))
	return message.New(msg.Type(), p)
}

func TestAddBatchCommand_SurvivesWire(t *testing.T) {
	eta := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	cmd := AddBatchCommand{Reference: "b1", SKU: "LAMP", PurchasedQuantity: 40, ETA: &eta}

	got, err := ParseAddBatchCommand(decoded(t, cmd.Message()))

	require.NoError(t, err)
	require.NotNil(t, got.ETA)
	assert.True(t, eta.Equal(*got.ETA))
	got.ETA = nil
	assert.Equal(t, AddBatchCommand{Reference: "b1", SKU: "LAMP", PurchasedQuantity: 40}, got)
}

func TestAddBatchCommand_WithoutETA(t *testing.T) {
	cmd := AddBatchCommand{Reference: "b1", SKU: "LAMP", PurchasedQuantity: 40}
	assert.NotContains(t, cmd.Message().Payload(), "eta")

	got, err := ParseAddBatchCommand(decoded(t, cmd.Message()))
	require.NoError(t, err)
	assert.Nil(t, got.ETA)
}

func TestParseChangeBatchQuantityCommand_MissingField(t *testing.T) {
	_, err := ParseChangeBatchQuantityCommand(message.New(ChangeBatchQuantityCommandType, message.Payload{"batchReference": "b1"}))

	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseAllocateCommand_WrongType(t *testing.T) {
	_, err := ParseAllocateCommand(message.New(AllocateCommandType, message.Payload{"orderId": "o1", "sku": 7, "quantity": 1}))

	assert.ErrorIs(t, err, ErrValidation)
}
