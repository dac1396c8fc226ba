package pairs

// PoolRole determines which trade directions a pair supports and how its fee
// revenue is routed.
type PoolRole uint8

const (
	// RoleItem pools hold an item inventory and only sell items to callers.
	RoleItem PoolRole = iota
	// RoleCurrency pools hold only base currency and only buy items from callers.
	RoleCurrency
	// RoleTrade pools hold both sides, support both directions, and charge an
	// extra per-trade fee that compounds into the pool's own reserve.
	RoleTrade
)

func (r PoolRole) String() string {
	switch r {
	case RoleItem:
		return "item"
	case RoleCurrency:
		return "currency"
	case RoleTrade:
		return "trade"
	default:
		return "unknown"
	}
}

func (r PoolRole) valid() bool {
	return r <= RoleTrade
}
