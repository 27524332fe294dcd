// Copyright (C) 2023 Marlin Markets Limited
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package types

import "fmt"

// LevelType is the side of a price level.
type LevelType int

const (
	LevelTypeBid LevelType = iota
	LevelTypeAsk
)

func (t LevelType) String() string {
	switch t {
	case LevelTypeBid:
		return "BID"
	case LevelTypeAsk:
		return "ASK"
	default:
		return "<unknown>"
	}
}

// Level is an aggregate snapshot of all orders resting at one price on one
// side of a book. Volume fields are maintained incrementally by the order
// book on every order add/reduce/delete, never recomputed from scratch.
type Level struct {
	Type          LevelType
	Price         int64
	TotalVolume   int64
	HiddenVolume  int64
	VisibleVolume int64
	Orders        int
}

// IsBid reports whether this is a bid price level.
func (l Level) IsBid() bool { return l.Type == LevelTypeBid }

// IsAsk reports whether this is an ask price level.
func (l Level) IsAsk() bool { return l.Type == LevelTypeAsk }

func (l Level) String() string {
	return fmt.Sprintf("Level(Type=%v; Price=%d; TotalVolume=%d; HiddenVolume=%d; VisibleVolume=%d; Orders=%d)",
		l.Type, l.Price, l.TotalVolume, l.HiddenVolume, l.VisibleVolume, l.Orders)
}

// UpdateType describes a structural change to a price level.
type UpdateType int

const (
	UpdateTypeNone UpdateType = iota
	UpdateTypeAdd
	UpdateTypeUpdate
	UpdateTypeDelete
)

func (t UpdateType) String() string {
	switch t {
	case UpdateTypeNone:
		return "NONE"
	case UpdateTypeAdd:
		return "ADD"
	case UpdateTypeUpdate:
		return "UPDATE"
	case UpdateTypeDelete:
		return "DELETE"
	default:
		return "<unknown>"
	}
}

// LevelUpdate carries a price level change out of the order book, with a
// flag marking whether the level is now top of the book on its side.
type LevelUpdate struct {
	Type   UpdateType
	Update Level
	Top    bool
}

func (u LevelUpdate) String() string {
	return fmt.Sprintf("LevelUpdate(Type=%v; Update=%v; Top=%v)", u.Type, u.Update, u.Top)
}
