package configmem

import lccerr "github.com/openlcb-go/lcc/internal/lccerr"

// Standard OpenLCB configuration-memory address spaces.
const (
	SpaceCDI             byte = 0xFF
	SpaceConfig          byte = 0xFD
	SpaceACDIManufacturer byte = 0xFC
	SpaceACDIUser        byte = 0xFB
	SpaceFirmware        byte = 0xEF
)

// NewBlobSpace builds an AddressSpace backed by an in-memory byte slice:
// CDI and ACDI-manufacturer are typically read-only compiled-in blobs,
// while user-config and ACDI-user are read-write. A zero-length blob
// yields a space with Present left false, so registering it is harmless
// and callers don't need to special-case an absent FDI/CDI.
func NewBlobSpace(space byte, data []byte, readOnly bool) *AddressSpace {
	present := len(data) > 0
	high := uint32(0)
	if present {
		high = uint32(len(data) - 1)
	}
	return &AddressSpace{
		Space:    space,
		Present:  present,
		ReadOnly: readOnly,
		LowAddr:  0,
		HighAddr: high,
		Read: func(address uint32, count int) ([]byte, error) {
			if int(address)+count > len(data) {
				return nil, lccerr.ErrUnknownAddressSpace
			}
			return append([]byte(nil), data[address:int(address)+count]...), nil
		},
		Write: func(address uint32, in []byte) error {
			if readOnly {
				return lccerr.ErrAddressSpaceLocked
			}
			if int(address)+len(in) > len(data) {
				return lccerr.ErrUnknownAddressSpace
			}
			copy(data[address:], in)
			return nil
		},
	}
}
