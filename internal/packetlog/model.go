package packetlog

import "time"

// PacketRow is one captured packet, flattened for SQLite storage. It is
// a plain copy of what the core Ring already delivered; the core itself
// never persists anything (spec.md §1's non-goals).
type PacketRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	SIUUUID     uint32 `gorm:"index:idx_device"`
	PortID      uint32 `gorm:"index:idx_device"`
	PacketIndex uint64 `gorm:"index"`
	AngleDeg    float32
	SpeedMps    float32
	BatteryPct  float32
	ReceivedAt  time.Time `gorm:"index"`
	CapturedAt  time.Time
}

func (PacketRow) TableName() string { return "packet_rows" }
