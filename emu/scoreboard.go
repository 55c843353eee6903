package emu

// Scoreboard records which registers of one class have a result pending.
type Scoreboard uint32

// Set marks register idx as pending.
func (s *Scoreboard) Set(idx uint8) {
	*s |= 1 << (idx & 0x1F)
}

// Clear marks register idx as available.
func (s *Scoreboard) Clear(idx uint8) {
	*s &^= 1 << (idx & 0x1F)
}

// Test reports whether register idx is pending.
func (s Scoreboard) Test(idx uint8) bool {
	return s&(1<<(idx&0x1F)) != 0
}

// Any reports whether any register is pending.
func (s Scoreboard) Any() bool {
	return s != 0
}
