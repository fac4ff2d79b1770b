package allocator

import (
	"testing"
	"time"

	"qrcollect/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qr(id int64, usage, limit int, status string, last *time.Time) *model.QRCode {
	return &model.QRCode{
		ID:             id,
		Name:           "qr",
		GroupID:        "alipay",
		UsageCount:     usage,
		DailyLimit:     limit,
		Status:         status,
		LastSelectedAt: last,
	}
}

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestSelectNeverReturnsIneligible(t *testing.T) {
	qrs := []*model.QRCode{
		qr(1, 0, 5, model.QRCodeStatusRestricted, nil),
		qr(2, 5, 5, model.QRCodeStatusActive, nil),
		qr(3, 6, 5, model.QRCodeStatusActive, nil),
		qr(4, 1, 5, model.QRCodeStatusActive, at("2024-01-02T00:00:00Z")),
		qr(5, 0, 0, model.QRCodeStatusActive, nil),
		qr(6, 2, 5, model.QRCodeStatusActive, at("2024-01-03T00:00:00Z")),
	}

	c, err := Select(qrs, ArityDual)
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Primary.ID)
	assert.Equal(t, int64(6), c.Backup.ID)
	assert.True(t, c.Primary.Eligible())
	assert.True(t, c.Backup.Eligible())
}

func TestSelectCapacityGate(t *testing.T) {
	tests := []struct {
		name  string
		qrs   []*model.QRCode
		arity int
	}{
		{name: "empty_single", qrs: nil, arity: AritySingle},
		{name: "one_for_dual", qrs: []*model.QRCode{qr(1, 0, 5, model.QRCodeStatusActive, nil)}, arity: ArityDual},
		{
			name: "one_eligible_of_two_for_dual",
			qrs: []*model.QRCode{
				qr(1, 0, 5, model.QRCodeStatusActive, nil),
				qr(2, 0, 5, model.QRCodeStatusRestricted, nil),
			},
			arity: ArityDual,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Select(tt.qrs, tt.arity)
			assert.ErrorIs(t, err, ErrInsufficientCapacity)
			assert.Nil(t, c)
		})
	}
}

func TestSelectLeastRecentlyUsedFirst(t *testing.T) {
	a := qr(3, 0, 5, model.QRCodeStatusActive, nil)
	b := qr(1, 0, 5, model.QRCodeStatusActive, at("2024-01-01T00:00:00Z"))
	c := qr(2, 0, 5, model.QRCodeStatusActive, at("2024-01-02T00:00:00Z"))

	got, err := Select([]*model.QRCode{c, b, a}, AritySingle)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.Primary.ID)
	assert.Nil(t, got.Backup)

	a.Status = model.QRCodeStatusRestricted
	got, err = Select([]*model.QRCode{c, b, a}, AritySingle)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.Primary.ID)
}

func TestSelectNullTimestampBeatsLowerUsage(t *testing.T) {
	p := qr(10, 4, 5, model.QRCodeStatusActive, nil)
	q := qr(11, 0, 5, model.QRCodeStatusActive, at("2024-01-01T00:00:00Z"))

	got, err := Select([]*model.QRCode{q, p}, ArityDual)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.Primary.ID)
	assert.Equal(t, q.ID, got.Backup.ID)

	primary, backup := got.IDs()
	assert.Equal(t, int64(10), primary)
	require.NotNil(t, backup)
	assert.Equal(t, int64(11), *backup)
}

func TestSelectTieBreakIsStable(t *testing.T) {
	same := at("2024-01-01T00:00:00Z")
	qrs := []*model.QRCode{
		qr(7, 0, 5, model.QRCodeStatusActive, same),
		qr(5, 0, 5, model.QRCodeStatusActive, same),
		qr(9, 0, 5, model.QRCodeStatusActive, nil),
		qr(8, 0, 5, model.QRCodeStatusActive, nil),
	}
	for i := 0; i < 20; i++ {
		got, err := Select(qrs, ArityDual)
		require.NoError(t, err)
		assert.Equal(t, int64(8), got.Primary.ID)
		assert.Equal(t, int64(9), got.Backup.ID)
	}
	// 入参顺序不被修改
	assert.Equal(t, int64(7), qrs[0].ID)
}

func TestSelectInvalidArity(t *testing.T) {
	_, err := Select([]*model.QRCode{qr(1, 0, 5, model.QRCodeStatusActive, nil)}, 3)
	assert.ErrorIs(t, err, ErrInvalidArity)
	_, err = Select(nil, 0)
	assert.ErrorIs(t, err, ErrInvalidArity)
}
