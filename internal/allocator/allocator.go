// Package allocator 收款码分配策略
//
// 只包含纯计算：资格过滤、最久未使用优先排序与候选选取。
// 所有持久化变更（受限标记、使用计数）由 service 层在存储上以条件更新完成。
package allocator

import (
	"errors"
	"sort"

	"qrcollect/internal/model"
)

const (
	AritySingle = 1
	ArityDual   = 2
)

var (
	ErrInsufficientCapacity = errors.New("当前通道可用收款码不足，请更换其他支付方式")
	ErrNoFailoverAvailable  = errors.New("当前通道不支持切换备用收款码")
	ErrCommitConflict       = errors.New("收款码额度已用完，请重新选择通道")
	ErrInvalidArity         = errors.New("通道收款码数量配置错误")
	ErrChannelNotFound      = errors.New("支付通道不存在")
)

// Candidates 一次选取的结果，Backup 仅在双码通道中存在
type Candidates struct {
	Primary *model.QRCode
	Backup  *model.QRCode
}

// IDs 返回主码和备用码的 ID，备用码不存在时为 nil
func (c *Candidates) IDs() (primary int64, backup *int64) {
	primary = c.Primary.ID
	if c.Backup != nil {
		id := c.Backup.ID
		backup = &id
	}
	return primary, backup
}

// FilterEligible 过滤出状态正常且未达上限的收款码，不修改入参
func FilterEligible(qrs []*model.QRCode) []*model.QRCode {
	out := make([]*model.QRCode, 0, len(qrs))
	for _, qr := range qrs {
		if qr.Eligible() {
			out = append(out, qr)
		}
	}
	return out
}

// SortLeastRecentlyUsed 按 LastSelectedAt 升序排序，从未使用过的排最前，
// 时间相同时按 ID 升序，保证同一次选取结果稳定
func SortLeastRecentlyUsed(qrs []*model.QRCode) {
	sort.SliceStable(qrs, func(i, j int) bool {
		a, b := qrs[i].LastSelectedAt, qrs[j].LastSelectedAt
		switch {
		case a == nil && b == nil:
			return qrs[i].ID < qrs[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return qrs[i].ID < qrs[j].ID
		default:
			return a.Before(*b)
		}
	})
}

// Select 从一组收款码中选取 arity 个候选
//
// 可用数量不足 arity 时返回 ErrInsufficientCapacity，不返回部分结果。
func Select(qrs []*model.QRCode, arity int) (*Candidates, error) {
	if arity != AritySingle && arity != ArityDual {
		return nil, ErrInvalidArity
	}

	eligible := FilterEligible(qrs)
	if len(eligible) < arity {
		return nil, ErrInsufficientCapacity
	}
	SortLeastRecentlyUsed(eligible)

	c := &Candidates{Primary: eligible[0]}
	if arity == ArityDual {
		c.Backup = eligible[1]
	}
	return c, nil
}
