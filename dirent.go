package fat

import (
	"encoding/binary"

	"golang.org/x/text/encoding/charmap"
)

// Directory slot layout. Each slot is 32 bytes; multi-byte fields are
// little-endian.
const (
	slotSize = 32

	dirNameOff      = 0  // 8.3 name, space padded (11-byte)
	dirAttrOff      = 11 // attribute flags (BYTE)
	dirNTresOff     = 12 // reserved for WindowsNT (BYTE)
	dirCrtTime10Off = 13 // creation time, 10ms unit (BYTE)
	dirCrtTimeOff   = 14 // creation time+date (2 WORDs)
	dirLstAccDateOff = 18 // last access date (WORD)
	dirFstClusHIOff = 20 // start cluster, high word (WORD)
	dirModTimeOff   = 22 // modification time+date (2 WORDs)
	dirFstClusLOOff = 26 // start cluster, low word (WORD)
	dirFileSizeOff  = 28 // file size in bytes (DWORD)

	// Long filename slots reuse the same 32 bytes.
	ldirOrdOff       = 0  // sequence number and last flag (BYTE)
	ldirAttrOff      = 11 // always amLFN (BYTE)
	ldirTypeOff      = 12 // always 0 (BYTE)
	ldirChksumOff    = 13 // checksum of the paired short name (BYTE)
	ldirFstClusLOOff = 26 // always 0 (WORD)
)

// First-name-byte slot states.
const (
	slotEmpty   = 0x00 // never used; terminates the directory.
	slotE5      = 0x05 // first name byte is a literal 0xE5.
	slotDeleted = 0xE5 // slot deleted.
)

// Attribute flags.
const (
	amRDO  = 0x01 // read-only.
	amHID  = 0x02 // hidden.
	amSYS  = 0x04 // system.
	amVOL  = 0x08 // volume label.
	amLFN  = 0x0F // long filename slot.
	amDIR  = 0x10 // directory.
	amARC  = 0x20 // archive.
	amMASK = 0x3F

	amNormal = 0x00
)

const (
	lfnChars    = 13   // UCS-2 characters carried per long-name slot.
	lfnLast     = 0x40 // last-slot flag in the sequence byte.
	lfnSeqMask  = 0x3F
	lfnMaxName  = 255
)

// lfnCharOffsets are the byte offsets of the 5+6+2 UCS-2 characters within
// a long-filename slot.
var lfnCharOffsets = [lfnChars]byte{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}

// dirEntry is a 32-byte view into the sector cache buffer. It is only valid
// until the cache moves to another sector.
type dirEntry []byte

func (de dirEntry) isEnd() bool     { return de[dirNameOff] == slotEmpty }
func (de dirEntry) isDeleted() bool { return de[dirNameOff] == slotDeleted }
func (de dirEntry) attr() byte      { return de[dirAttrOff] & amMASK }
func (de dirEntry) isLFN() bool     { return de.attr() == amLFN }
func (de dirEntry) isVolume() bool  { return de.attr()&amVOL != 0 && !de.isLFN() }
func (de dirEntry) isDir() bool     { return de.attr()&amDIR != 0 }

func (de dirEntry) startCluster() uint32 {
	return uint32(binary.LittleEndian.Uint16(de[dirFstClusHIOff:]))<<16 |
		uint32(binary.LittleEndian.Uint16(de[dirFstClusLOOff:]))
}

func (de dirEntry) size() uint32 {
	return binary.LittleEndian.Uint32(de[dirFileSizeOff:])
}

func (de dirEntry) setSize(size uint32) {
	binary.LittleEndian.PutUint32(de[dirFileSizeOff:], size)
}

func (de dirEntry) setStartCluster(cluster uint32) {
	binary.LittleEndian.PutUint16(de[dirFstClusHIOff:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(de[dirFstClusLOOff:], uint16(cluster))
}

// displayName builds the NAME.EXT form of the 8.3 name: space padding
// trimmed, a dot only when an extension is present. Bytes above 0x7F are
// code page 437, decoded through the charmap table.
func (de dirEntry) displayName() string {
	var buf [13]byte
	n := 0
	for i := 0; i < 8 && de[i] != ' '; i++ {
		b := de[i]
		if i == 0 && b == slotE5 {
			b = slotDeleted
		}
		buf[n] = b
		n++
	}
	if de[8] != ' ' {
		buf[n] = '.'
		n++
		for i := 8; i < 11 && de[i] != ' '; i++ {
			buf[n] = de[i]
			n++
		}
	}
	for i := 0; i < n; i++ {
		if buf[i] >= 0x80 {
			return decodeOEM(buf[:n])
		}
	}
	return string(buf[:n])
}

func decodeOEM(raw []byte) string {
	out := make([]rune, 0, len(raw))
	for _, b := range raw {
		out = append(out, charmap.CodePage437.DecodeByte(b))
	}
	return string(out)
}

// seq returns the long-name slot's sequence byte.
func (de dirEntry) seq() byte     { return de[ldirOrdOff] }
func (de dirEntry) isLast() bool  { return de.seq()&lfnLast != 0 }
func (de dirEntry) seqNum() int   { return int(de.seq() & lfnSeqMask) }
func (de dirEntry) checksum() byte { return de[ldirChksumOff] }

// lfnCopy places the slot's 13 characters into name at the position encoded
// by the sequence number. Only the low byte of each UCS-2 character is kept.
func (de dirEntry) lfnCopy(name []byte) {
	base := (de.seqNum() - 1) * lfnChars
	for i, off := range lfnCharOffsets {
		if base+i >= len(name) {
			return
		}
		name[base+i] = de[off]
	}
}

// sfnChecksum is the checksum over the 11 bytes of a short name stored in
// each of its long-name slots.
func sfnChecksum(name []byte) (sum byte) {
	for i := 0; i < 11; i++ {
		sum = (sum >> 1) + (sum << 7) + name[i]
	}
	return sum
}

// DOS-encoded 1980-01-01, the fixed date stamped on every write.
const dosDate1980 uint16 = 1<<5 | 1

// sfnCreate fills slot with a short-name entry for filename: uppercased
// space-padded 8.3 form, fixed 1980-01-01 00:00:00 timestamps, the start
// cluster split into high and low words, and the file size.
func sfnCreate(slot dirEntry, filename string, size, cluster uint32) {
	for i := 0; i < 11; i++ {
		slot[dirNameOff+i] = ' '
	}
	i, n := 0, 0
	for ; i < len(filename) && filename[i] != '.' && n < 8; i++ {
		slot[dirNameOff+n] = upperASCII(filename[i])
		n++
	}
	for i < len(filename) && filename[i] != '.' {
		i++ // name body longer than 8; truncate.
	}
	if i < len(filename) && filename[i] == '.' {
		i++
		for n = 0; i < len(filename) && n < 3; i++ {
			slot[dirNameOff+8+n] = upperASCII(filename[i])
			n++
		}
	}
	if slot[dirNameOff] == slotDeleted {
		slot[dirNameOff] = slotE5
	}

	slot[dirAttrOff] = amNormal
	slot[dirNTresOff] = 0
	slot[dirCrtTime10Off] = 0
	binary.LittleEndian.PutUint16(slot[dirCrtTimeOff:], 0)
	binary.LittleEndian.PutUint16(slot[dirCrtTimeOff+2:], dosDate1980)
	binary.LittleEndian.PutUint16(slot[dirLstAccDateOff:], dosDate1980)
	binary.LittleEndian.PutUint16(slot[dirModTimeOff:], 0)
	binary.LittleEndian.PutUint16(slot[dirModTimeOff+2:], dosDate1980)
	binary.LittleEndian.PutUint16(slot[dirFstClusHIOff:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(slot[dirFstClusLOOff:], uint16(cluster))
	binary.LittleEndian.PutUint32(slot[dirFileSizeOff:], size)
}

func upperASCII(c byte) byte {
	if 'a' <= c && c <= 'z' {
		return c - 0x20
	}
	return c
}
