package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStock_Decrement(t *testing.T) {
	s := &Stock{Quantity: 5}

	assert.NoError(t, s.Decrement(5))
	assert.Equal(t, 0, s.Quantity)

	assert.ErrorIs(t, s.Decrement(1), ErrInsufficientStock)
	assert.Equal(t, 0, s.Quantity)

	assert.ErrorIs(t, s.Decrement(0), ErrInvalidAmount)
	assert.ErrorIs(t, s.Decrement(-2), ErrInvalidAmount)
}

func TestStock_Increment(t *testing.T) {
	s := &Stock{Quantity: 1}

	assert.NoError(t, s.Increment(4))
	assert.Equal(t, 5, s.Quantity)
	assert.ErrorIs(t, s.Increment(0), ErrInvalidAmount)
}

func TestStock_Apply(t *testing.T) {
	s := &Stock{Quantity: 3}

	assert.NoError(t, s.Apply(TransactionIncrement, 2))
	assert.NoError(t, s.Apply(TransactionDecrement, 4))
	assert.Equal(t, 1, s.Quantity)
	assert.ErrorIs(t, s.Apply("TRANSFER", 1), ErrInvalidTransactionType)
}

func TestUpdateStockInput_Validate(t *testing.T) {
	assert.NoError(t, UpdateStockInput{ProductID: "p-1", Quantity: 1}.Validate())

	err := UpdateStockInput{Quantity: 0, TransactionType: "MOVE"}.Validate()
	assert.ErrorIs(t, err, ErrEmptyProductID)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.ErrorIs(t, err, ErrInvalidTransactionType)
}

func TestAdjustData_Validate(t *testing.T) {
	assert.NoError(t, (&AdjustData{ProductID: "p-1", Quantity: 2, TransactionType: TransactionIncrement}).Validate())
	assert.ErrorIs(t, (&AdjustData{Quantity: 2, TransactionType: TransactionIncrement}).Validate(), ErrEmptyProductID)
	assert.ErrorIs(t, (&AdjustData{ProductID: "p-1", TransactionType: TransactionIncrement}).Validate(), ErrInvalidAmount)
	assert.ErrorIs(t, (&AdjustData{ProductID: "p-1", Quantity: 1}).Validate(), ErrInvalidTransactionType)
}

func TestStock_TableName(t *testing.T) {
	assert.Equal(t, "inventory", Stock{}.TableName())
}
