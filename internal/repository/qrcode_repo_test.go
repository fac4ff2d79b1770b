package repository

import (
	"context"
	"testing"
	"time"

	"qrcollect/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createQRCode(t *testing.T, repo *QRCodeRepository, name, group string, limit int) *model.QRCode {
	t.Helper()
	qr := &model.QRCode{
		Name:       name,
		GroupID:    group,
		ImageURL:   "/uploads/qrcode/" + name + ".png",
		DailyLimit: limit,
		Status:     model.QRCodeStatusActive,
	}
	require.NoError(t, repo.Create(context.Background(), qr))
	return qr
}

func TestQRCodeCommitUsageRespectsLimit(t *testing.T) {
	repo := NewQRCodeRepository(setupTestDB(t))
	ctx := context.Background()
	qr := createQRCode(t, repo, "a1", "alipay", 2)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CommitUsage(ctx, nil, qr.ID, now))
	require.NoError(t, repo.CommitUsage(ctx, nil, qr.ID, now.Add(time.Minute)))
	err := repo.CommitUsage(ctx, nil, qr.ID, now.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrQRCodeCapacityExhausted)

	got, err := repo.GetByID(ctx, nil, qr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsageCount)
	require.NotNil(t, got.LastSelectedAt)
	assert.True(t, got.LastSelectedAt.Equal(now.Add(time.Minute)))

	assert.ErrorIs(t, repo.CommitUsage(ctx, nil, 9999, now), ErrQRCodeNotFound)
}

func TestQRCodeListEligibleByGroup(t *testing.T) {
	repo := NewQRCodeRepository(setupTestDB(t))
	ctx := context.Background()
	ok := createQRCode(t, repo, "ok", "wechat", 3)
	full := createQRCode(t, repo, "full", "wechat", 1)
	restricted := createQRCode(t, repo, "restricted", "wechat", 3)
	createQRCode(t, repo, "other", "alipay", 3)

	require.NoError(t, repo.CommitUsage(ctx, nil, full.ID, time.Now()))
	require.NoError(t, repo.SetStatus(ctx, nil, restricted.ID, model.QRCodeStatusRestricted))

	qrs, err := repo.ListEligibleByGroup(ctx, nil, "wechat")
	require.NoError(t, err)
	require.Len(t, qrs, 1)
	assert.Equal(t, ok.ID, qrs[0].ID)
}

func TestQRCodeResetUsageScopes(t *testing.T) {
	repo := NewQRCodeRepository(setupTestDB(t))
	ctx := context.Background()
	a := createQRCode(t, repo, "a", "alipay", 5)
	b := createQRCode(t, repo, "b", "alipay", 5)
	c := createQRCode(t, repo, "c", "usdt", 5)
	for _, qr := range []*model.QRCode{a, b, c} {
		require.NoError(t, repo.CommitUsage(ctx, nil, qr.ID, time.Now()))
	}
	require.NoError(t, repo.SetStatus(ctx, nil, b.ID, model.QRCodeStatusRestricted))

	usage := func(id int64) int {
		qr, err := repo.GetByID(ctx, nil, id)
		require.NoError(t, err)
		return qr.UsageCount
	}

	n, err := repo.ResetUsage(ctx, model.ResetScope{Kind: model.ResetActive})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 0, usage(a.ID))
	assert.Equal(t, 1, usage(b.ID))
	assert.Equal(t, 0, usage(c.ID))

	_, err = repo.ResetUsage(ctx, model.ResetScope{Kind: model.ResetSingle, QRCodeID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, usage(b.ID))

	require.NoError(t, repo.CommitUsage(ctx, nil, b.ID, time.Now()))
	n, err = repo.ResetUsage(ctx, model.ResetScope{Kind: model.ResetAll})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, 0, usage(b.ID))

	// 重置不影响状态
	got, err := repo.GetByID(ctx, nil, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QRCodeStatusRestricted, got.Status)

	_, err = repo.ResetUsage(ctx, model.ResetScope{Kind: model.ResetSingle})
	assert.ErrorIs(t, err, ErrResetScopeInvalid)
	_, err = repo.ResetUsage(ctx, model.ResetScope{Kind: model.ResetSingle, QRCodeID: 9999})
	assert.ErrorIs(t, err, ErrQRCodeNotFound)
	_, err = repo.ResetUsage(ctx, model.ResetScope{Kind: "weekly"})
	assert.ErrorIs(t, err, ErrResetScopeInvalid)
}

func TestQRCodeListNamesAndDelete(t *testing.T) {
	repo := NewQRCodeRepository(setupTestDB(t))
	ctx := context.Background()
	a := createQRCode(t, repo, "a", "alipay", 5)
	b := createQRCode(t, repo, "b", "alipay", 5)

	require.NoError(t, repo.Delete(ctx, b.ID))
	assert.ErrorIs(t, repo.Delete(ctx, b.ID), ErrQRCodeNotFound)

	names, err := repo.ListNames(ctx, []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{a.ID: "a"}, names)
}
