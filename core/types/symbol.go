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

import (
	"bytes"
	"fmt"
)

// SymbolNameSize is the fixed size of a symbol display name.
const SymbolNameSize = 32

// Symbol is the identity record of a tradeable instrument. External
// reference-data owners map their own instrument identifiers onto the dense
// integer id space; the engine knows nothing beyond the id and the display
// name. Immutable once registered.
type Symbol struct {
	ID   uint32
	Name [SymbolNameSize]byte
}

// NewSymbol returns a symbol with the given id and display name. Names
// longer than SymbolNameSize bytes are truncated.
func NewSymbol(id uint32, name string) Symbol {
	s := Symbol{ID: id}
	copy(s.Name[:], name)
	return s
}

// NameString returns the display name with fixed-size padding stripped.
func (s Symbol) NameString() string {
	return string(bytes.TrimRight(s.Name[:], "\x00"))
}

func (s Symbol) String() string {
	return fmt.Sprintf("Symbol(Id=%d; Name=%s)", s.ID, s.NameString())
}
